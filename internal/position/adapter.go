package position

import (
	"context"
	"sync"
)

// Source is a device position sensor: a one-shot read and a continuous watch.
type Source interface {
	Current(ctx context.Context, opts Options) (Sample, error)
	Watch(opts Options, onSample func(Sample), onError func(error)) (stop func())
}

// Adapter hides a Source behind a single subscription with guaranteed release.
type Adapter struct {
	src  Source
	opts Options
}

func NewAdapter(src Source, opts Options) *Adapter {
	return &Adapter{src: src, opts: opts}
}

// subscription holds the read lock for the whole delivery so release waits
// for a callback that is already running.
type subscription struct {
	mu       sync.RWMutex
	active   bool
	onSample func(Sample)
	onError  func(error)
}

func (s *subscription) sample(sample Sample) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active && s.onSample != nil {
		s.onSample(sample)
	}
}

func (s *subscription) fail(err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active && s.onError != nil {
		s.onError(err)
	}
}

func (s *subscription) deactivate() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// Subscribe issues one immediate read plus a continuous watch and routes every
// sample to onSample. The returned func releases the watch; it is idempotent
// and nothing is delivered once it has returned. It waits for a delivery in
// progress, so it must not be called from inside onSample or onError.
func (a *Adapter) Subscribe(onSample func(Sample), onError func(error)) (unsubscribe func()) {
	sub := &subscription{active: true, onSample: onSample, onError: onError}

	ctx, cancel := context.WithCancel(context.Background())
	stop := a.src.Watch(a.opts, sub.sample, sub.fail)

	go func() {
		sample, err := a.src.Current(ctx, a.opts)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			sub.fail(err)
			return
		}
		sub.sample(sample)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.deactivate()
			cancel()
			if stop != nil {
				stop()
			}
		})
	}
}
