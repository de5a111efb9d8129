package session

import (
	"errors"

	"github.com/GOOTEAKIM/RunUs/internal/room"
)

var (
	ErrNotOwner       = errors.New("session: only the room owner can do that")
	ErrNotConnected   = errors.New("session: not connected")
	ErrNotRunning     = errors.New("session: run not in progress")
	ErrAlreadyStarted = errors.New("session: run already started")
	ErrEnded          = errors.New("session: ended")
)

type Status int

const (
	Waiting Status = iota
	Countdown
	Running
	Ended
)

func (s Status) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Countdown:
		return "countdown"
	case Running:
		return "running"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// State is the local run. Elapsed time and distance only grow while Running
// and stay fixed once Ended.
type State struct {
	Status              Status  `json:"status"`
	ElapsedSeconds      int64   `json:"elapsedSeconds"`
	TotalDistanceMeters float64 `json:"totalDistanceMeters"`
	TotalCalories       float64 `json:"totalCalories"`
}

// Room is the client's cached view; the relay owns the real one.
type Room struct {
	ID      string        `json:"id"`
	OwnerID room.UserID   `json:"ownerId"`
	Members []room.Member `json:"members"`
}

type ExitReason int

const (
	ExitQuit ExitReason = iota
	ExitRoomClosed
	ExitChannelClosed
	ExitLeft
	ExitCancelled
)

func (r ExitReason) String() string {
	switch r {
	case ExitQuit:
		return "quit"
	case ExitRoomClosed:
		return "room closed"
	case ExitChannelClosed:
		return "channel closed"
	case ExitLeft:
		return "left"
	case ExitCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Exit is what Run returns: why the session ended, the frozen state and
// whether the result reached the record API.
type Exit struct {
	Reason ExitReason
	State  State
	Saved  bool
}

// caloriesPerKgKm approximates running energy cost.
const caloriesPerKgKm = 1.036

func Calories(weightKg, km float64) float64 {
	if weightKg <= 0 || km <= 0 {
		return 0
	}
	return weightKg * km * caloriesPerKgKm
}
