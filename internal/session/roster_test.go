package session

import (
	"math"
	"sync"
	"testing"

	"github.com/GOOTEAKIM/RunUs/internal/room"
)

func TestRosterUpsertKeepsOrder(t *testing.T) {
	r := NewRoster()
	r.Upsert(Entry{UserID: "a", Nickname: "A", Latitude: 1})
	r.Upsert(Entry{UserID: "b", Nickname: "B", Latitude: 2})
	r.Upsert(Entry{UserID: "a", Nickname: "A", Latitude: 3})

	if r.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", r.Len())
	}
	snap := r.Snapshot()
	if snap[0].UserID != "a" || snap[1].UserID != "b" {
		t.Fatalf("expected insertion order, got %+v", snap)
	}
	if e, ok := r.Get("a"); !ok || e.Latitude != 3 {
		t.Fatalf("expected last write to win, got %+v", e)
	}

	r.Reset()
	if r.Len() != 0 || len(r.Snapshot()) != 0 {
		t.Fatalf("expected empty roster")
	}
	if _, ok := r.Get("a"); ok {
		t.Fatalf("expected entry gone")
	}
}

func TestRosterConcurrentUpserts(t *testing.T) {
	r := NewRoster()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "a"
			if i%2 == 1 {
				id = "b"
			}
			r.Upsert(Entry{UserID: room.UserID(id), Latitude: float64(i)})
			_ = r.Snapshot()
		}(i)
	}
	wg.Wait()
	if r.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", r.Len())
	}
}

func TestCalories(t *testing.T) {
	if got := Calories(65, 10); math.Abs(got-673.4) > 1e-9 {
		t.Fatalf("unexpected kcal %v", got)
	}
	if Calories(65, 0) != 0 || Calories(0, 5) != 0 || Calories(65, -1) != 0 {
		t.Fatalf("expected zero kcal for empty input")
	}
}
