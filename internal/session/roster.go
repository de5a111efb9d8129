package session

import (
	"sync"

	"github.com/GOOTEAKIM/RunUs/internal/room"
)

type Entry struct {
	UserID    room.UserID `json:"userId"`
	Nickname  string      `json:"nickname"`
	Latitude  float64     `json:"latitude"`
	Longitude float64     `json:"longitude"`
}

// Roster holds the last known position of every runner in the room, in the
// order they first reported. Safe for concurrent use.
type Roster struct {
	mu      sync.RWMutex
	order   []room.UserID
	entries map[room.UserID]Entry
}

func NewRoster() *Roster {
	return &Roster{entries: map[room.UserID]Entry{}}
}

// Upsert replaces the entry for e.UserID, keeping its original position.
func (r *Roster) Upsert(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.UserID]; !ok {
		r.order = append(r.order, e.UserID)
	}
	r.entries[e.UserID] = e
}

func (r *Roster) Get(id room.UserID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Roster) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

func (r *Roster) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.entries = map[room.UserID]Entry{}
}
