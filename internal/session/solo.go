package session

import (
	"log"
	"sync"
	"time"

	"github.com/GOOTEAKIM/RunUs/internal/position"
)

type SoloConfig struct {
	TickInterval time.Duration
	WeightKg     float64
	OnStatus     func(State)
	OnError      func(error)
}

// Solo is a run without a room: the same distance filter and elapsed clock,
// plus pause and resume. Nothing is broadcast or saved.
type Solo struct {
	tracker Tracker
	cfg     SoloConfig

	mu          sync.Mutex
	state       State
	paused      bool
	filter      position.Filter
	gen         int
	halted      bool
	unsubscribe func()
	stopTick    chan struct{}
}

func NewSolo(tracker Tracker, cfg SoloConfig) *Solo {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTick
	}
	return &Solo{tracker: tracker, cfg: cfg}
}

func (s *Solo) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Solo) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Solo) Start() error {
	s.mu.Lock()
	if s.state.Status != Waiting {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state.Status = Running
	s.resumeLocked()
	st := s.state
	s.mu.Unlock()

	s.notify(st)
	return nil
}

// Pause stops the clock and the sensor. Distance covered while paused is not
// counted.
func (s *Solo) Pause() error {
	s.mu.Lock()
	if s.state.Status != Running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	var release func()
	if !s.paused {
		s.paused = true
		release = s.haltLocked()
	}
	s.mu.Unlock()

	if release != nil {
		release()
	}
	return nil
}

func (s *Solo) Resume() error {
	s.mu.Lock()
	if s.state.Status != Running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if s.paused {
		s.paused = false
		s.resumeLocked()
	}
	s.mu.Unlock()
	return nil
}

// Stop ends the run and returns the final state. Calling it again returns the
// same state.
func (s *Solo) Stop() State {
	s.mu.Lock()
	if s.state.Status == Ended {
		st := s.state
		s.mu.Unlock()
		return st
	}
	release := s.haltLocked()
	s.state.Status = Ended
	st := s.state
	s.mu.Unlock()

	if release != nil {
		release()
	}
	s.notify(st)
	return st
}

func (s *Solo) resumeLocked() {
	s.gen++
	gen := s.gen
	s.halted = false
	s.filter.Reset()

	stop := make(chan struct{})
	s.stopTick = stop
	go s.runClock(gen, stop)

	// Subscribe may deliver synchronously; the callbacks take s.mu.
	s.mu.Unlock()
	unsubscribe := s.tracker.Subscribe(
		func(sample position.Sample) { s.onSample(gen, sample) },
		func(err error) { s.onError(gen, err) },
	)
	s.mu.Lock()
	if gen != s.gen || s.halted {
		// Halted or failed while subscribing.
		s.mu.Unlock()
		unsubscribe()
		s.mu.Lock()
		return
	}
	s.unsubscribe = unsubscribe
}

// haltLocked stops the clock and hands back the sensor release, which the
// caller runs after dropping s.mu.
func (s *Solo) haltLocked() (release func()) {
	s.gen++
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
	release = s.unsubscribe
	s.unsubscribe = nil
	return release
}

func (s *Solo) runClock(gen int, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if gen != s.gen {
				s.mu.Unlock()
				return
			}
			s.state.ElapsedSeconds++
			st := s.state
			s.mu.Unlock()
			s.notify(st)
		}
	}
}

func (s *Solo) onSample(gen int, sample position.Sample) {
	s.mu.Lock()
	if gen != s.gen || s.halted {
		s.mu.Unlock()
		return
	}
	_, delta := s.filter.Apply(sample)
	s.state.TotalDistanceMeters += delta
	s.state.TotalCalories = Calories(s.cfg.WeightKg, s.state.TotalDistanceMeters/1000)
	st := s.state
	s.mu.Unlock()
	s.notify(st)
}

func (s *Solo) onError(gen int, err error) {
	s.mu.Lock()
	if gen != s.gen || s.halted {
		s.mu.Unlock()
		return
	}
	s.halted = true
	release := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	// Still inside the sensor callback here.
	if release != nil {
		go release()
	}

	log.Printf("session: solo position error, tracking halted: %v", err)
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}

func (s *Solo) notify(st State) {
	if s.cfg.OnStatus != nil {
		s.cfg.OnStatus(st)
	}
}
