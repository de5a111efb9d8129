package position

import (
	"errors"
	"time"

	"github.com/GOOTEAKIM/RunUs/internal/shared/geo"
)

var (
	ErrPermissionDenied    = errors.New("position: permission denied")
	ErrPositionUnavailable = errors.New("position: unavailable")
	ErrTimeout             = errors.New("position: timeout")
)

// Sample is one reading from the device sensor. Speed is nil when the device
// does not report it.
type Sample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Speed     *float64  `json:"speed,omitempty"`
}

func (s Sample) Point() geo.Point {
	return geo.Point{Lat: s.Latitude, Lng: s.Longitude}
}

type Options struct {
	HighAccuracy bool
	MaxSampleAge time.Duration
	Timeout      time.Duration
}

// DefaultOptions forces fresh high-accuracy reads.
func DefaultOptions() Options {
	return Options{HighAccuracy: true, MaxSampleAge: 0}
}
