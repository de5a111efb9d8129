package position

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultReplayInterval = time.Second

// Track is a recorded route, usually loaded from a YAML file:
//
//	interval: 1s
//	loop: false
//	points:
//	  - {lat: 37.5665, lng: 126.9780, speed: 2.8}
type Track struct {
	Interval time.Duration `yaml:"interval"`
	Loop     bool          `yaml:"loop"`
	Points   []TrackPoint  `yaml:"points"`
}

type TrackPoint struct {
	Lat   float64  `yaml:"lat"`
	Lng   float64  `yaml:"lng"`
	Speed *float64 `yaml:"speed,omitempty"`
}

func LoadTrack(path string) (Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Track{}, err
	}
	return ParseTrack(data)
}

func ParseTrack(data []byte) (Track, error) {
	var track Track
	if err := yaml.Unmarshal(data, &track); err != nil {
		return Track{}, fmt.Errorf("parse track: %w", err)
	}
	if track.Interval <= 0 {
		track.Interval = defaultReplayInterval
	}
	return track, nil
}

// ReplaySource plays a Track back as if it came from a live sensor. Current
// reports the point under the cursor; each watch tick advances the cursor.
type ReplaySource struct {
	track Track
	now   func() time.Time

	mu     sync.Mutex
	cursor int
}

func NewReplaySource(track Track) *ReplaySource {
	if track.Interval <= 0 {
		track.Interval = defaultReplayInterval
	}
	return &ReplaySource{track: track, now: time.Now}
}

func (r *ReplaySource) Current(ctx context.Context, _ Options) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.track.Points) == 0 {
		return Sample{}, ErrPositionUnavailable
	}
	return r.sampleAt(r.cursor), nil
}

func (r *ReplaySource) Watch(_ Options, onSample func(Sample), onError func(error)) (stop func()) {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		if len(r.track.Points) == 0 {
			if onError != nil {
				onError(ErrPositionUnavailable)
			}
			return
		}

		ticker := time.NewTicker(r.track.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				sample, ok := r.advance()
				if !ok {
					return
				}
				onSample(sample)
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}

func (r *ReplaySource) advance() (Sample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.cursor + 1
	if next >= len(r.track.Points) {
		if !r.track.Loop {
			return Sample{}, false
		}
		next = 0
	}
	r.cursor = next
	return r.sampleAt(next), true
}

func (r *ReplaySource) sampleAt(i int) Sample {
	p := r.track.Points[i]
	return Sample{
		Latitude:  p.Lat,
		Longitude: p.Lng,
		Timestamp: r.now(),
		Speed:     p.Speed,
	}
}
