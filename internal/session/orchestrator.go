package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GOOTEAKIM/RunUs/internal/position"
	"github.com/GOOTEAKIM/RunUs/internal/record"
	"github.com/GOOTEAKIM/RunUs/internal/room"
)

const (
	defaultCountdown   = 3 * time.Second
	defaultTick        = time.Second
	defaultSaveTimeout = 10 * time.Second
	eventBuffer        = 64
)

// Channel is the room connection; *room.Client satisfies it.
type Channel interface {
	Connect(ctx context.Context, roomID string) error
	Send(msg room.Message) error
	On(name string, h room.Handler)
	Close() error
}

// Tracker is the position feed; *position.Adapter satisfies it.
type Tracker interface {
	Subscribe(onSample func(position.Sample), onError func(error)) (unsubscribe func())
}

// Saver persists a finished run; *record.Client satisfies it.
type Saver interface {
	SaveResult(ctx context.Context, r record.Result) error
}

type Config struct {
	RoomID  string
	PartyID string
	OwnerID room.UserID
	Self    room.Member

	Countdown         time.Duration
	BroadcastInterval time.Duration
	BroadcastOnSample bool
	TickInterval      time.Duration
	WeightKg          float64
	SaveTimeout       time.Duration
}

// Hooks are called on the session goroutine. They must not block on the
// orchestrator's own methods.
type Hooks struct {
	OnStatus  func(State)
	OnRoster  func([]Entry)
	OnMembers func([]room.Member)
	OnError   func(error)
}

// Orchestrator drives one team run. Every callback (socket, sensor, timers and
// the public methods) is queued onto the goroutine running Run, so the run
// state is only ever touched there.
type Orchestrator struct {
	cfg     Config
	channel Channel
	tracker Tracker
	saver   Saver
	hooks   Hooks
	env     room.Envelope
	roster  *Roster

	events  chan func()
	done    chan struct{}
	exited  chan struct{}
	started atomic.Bool

	mu    sync.RWMutex
	state State
	room  Room

	// owned by the Run goroutine
	filter        position.Filter
	last          *position.Sample
	trackGen      int
	unsubscribe   func()
	countdown     *time.Timer
	stopTick      func()
	stopBroadcast func()
	finished      bool
	exit          Exit
}

func New(cfg Config, channel Channel, tracker Tracker, saver Saver, hooks Hooks) *Orchestrator {
	if cfg.Countdown <= 0 {
		cfg.Countdown = defaultCountdown
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTick
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = defaultSaveTimeout
	}
	return &Orchestrator{
		cfg:     cfg,
		channel: channel,
		tracker: tracker,
		saver:   saver,
		hooks:   hooks,
		env:     room.Envelope{RoomID: cfg.RoomID, Nickname: cfg.Self.Nickname, UserID: cfg.Self.UserID},
		roster:  NewRoster(),
		events:  make(chan func(), eventBuffer),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		room:    Room{ID: cfg.RoomID, OwnerID: cfg.OwnerID},
	}
}

func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) Roster() []Entry {
	return o.roster.Snapshot()
}

func (o *Orchestrator) Members() []room.Member {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]room.Member(nil), o.room.Members...)
}

func (o *Orchestrator) IsOwner() bool {
	return o.cfg.OwnerID != "" && o.cfg.OwnerID == o.cfg.Self.UserID
}

// Run connects to the room and processes events until the session exits or
// ctx is done. Everything started during the run is released before it
// returns.
func (o *Orchestrator) Run(ctx context.Context) (Exit, error) {
	if !o.started.CompareAndSwap(false, true) {
		return Exit{}, ErrAlreadyStarted
	}
	defer close(o.exited)

	o.channel.On(room.EventOpen, func(room.Event) { o.post(o.handleOpen) })
	o.channel.On(room.EventClose, func(room.Event) {
		o.post(func() { o.finish(ExitChannelClosed) })
	})
	o.channel.On(room.EventError, func(ev room.Event) {
		o.post(func() { o.report(ev.Err) })
	})
	o.channel.On(string(room.TypeStart), func(room.Event) { o.post(o.beginCountdown) })
	o.channel.On(string(room.TypeQuit), func(room.Event) { o.post(o.handleQuit) })
	o.channel.On(string(room.TypeRoomClosed), func(room.Event) {
		o.post(func() { o.finish(ExitRoomClosed) })
	})
	o.channel.On(string(room.TypeLocation), func(ev room.Event) {
		o.post(func() { o.handleLocation(ev.Message) })
	})
	o.channel.On(string(room.TypeUserListUpdate), func(ev room.Event) {
		o.post(func() { o.handleMembers(ev.Message) })
	})

	if err := o.channel.Connect(ctx, o.cfg.RoomID); err != nil {
		o.finished = true
		close(o.done)
		return Exit{}, err
	}

	for !o.finished {
		select {
		case fn := <-o.events:
			fn()
		case <-ctx.Done():
			o.finish(ExitCancelled)
		}
	}
	o.drain()
	return o.exit, nil
}

// Start begins the countdown for everyone in the room.
func (o *Orchestrator) Start() error {
	return o.call(func() error {
		if !o.IsOwner() {
			return ErrNotOwner
		}
		if o.state.Status != Waiting {
			return ErrAlreadyStarted
		}
		if err := o.channel.Send(o.env.New(room.TypeStart, "")); err != nil {
			return ErrNotConnected
		}
		o.beginCountdown()
		return nil
	})
}

// Quit ends the run for everyone in the room and saves this runner's result.
func (o *Orchestrator) Quit() error {
	return o.call(func() error {
		if !o.IsOwner() {
			return ErrNotOwner
		}
		if o.state.Status != Countdown && o.state.Status != Running {
			return ErrNotRunning
		}
		if err := o.channel.Send(o.env.New(room.TypeQuit, "")); err != nil {
			log.Printf("session: quit not delivered: %v", err)
		}
		o.finish(ExitQuit)
		return nil
	})
}

// Leave exits the waiting room without saving anything.
func (o *Orchestrator) Leave() error {
	return o.call(func() error {
		if o.state.Status != Waiting {
			return ErrAlreadyStarted
		}
		if err := o.channel.Send(o.env.New(room.TypeWaitExit, "")); err != nil {
			log.Printf("session: wait exit not delivered: %v", err)
		}
		o.finish(ExitLeft)
		return nil
	})
}

func (o *Orchestrator) call(fn func() error) error {
	if !o.started.Load() {
		return ErrNotConnected
	}
	res := make(chan error, 1)
	run := func() {
		if o.finished {
			res <- ErrEnded
			return
		}
		res <- fn()
	}
	if !o.post(run) {
		return ErrEnded
	}
	select {
	case err := <-res:
		return err
	case <-o.exited:
		select {
		case err := <-res:
			return err
		default:
			return ErrEnded
		}
	}
}

func (o *Orchestrator) post(fn func()) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.events <- fn:
		return true
	case <-o.done:
		return false
	}
}

// drain runs whatever was queued before the loop stopped so blocked callers
// get an answer. Everything it runs sees an Ended session.
func (o *Orchestrator) drain() {
	for {
		select {
		case fn := <-o.events:
			fn()
		default:
			return
		}
	}
}

func (o *Orchestrator) handleOpen() {
	if o.finished {
		return
	}
	if err := o.channel.Send(o.env.New(room.TypeEnter, "")); err != nil {
		o.report(err)
	}
	o.notifyStatus()
}

func (o *Orchestrator) beginCountdown() {
	if o.finished || o.state.Status != Waiting {
		return
	}
	o.setStatus(Countdown)
	o.countdown = time.AfterFunc(o.cfg.Countdown, func() {
		o.post(o.beginRunning)
	})
}

func (o *Orchestrator) beginRunning() {
	if o.finished || o.state.Status != Countdown {
		return
	}
	o.countdown = nil
	o.setStatus(Running)

	o.filter.Reset()
	o.trackGen++
	gen := o.trackGen
	o.unsubscribe = o.tracker.Subscribe(
		func(s position.Sample) { o.post(func() { o.handleSample(gen, s) }) },
		func(err error) { o.post(func() { o.handleSensorError(gen, err) }) },
	)

	o.stopTick = o.every(o.cfg.TickInterval, o.tick)
	if o.cfg.BroadcastInterval > 0 {
		o.stopBroadcast = o.every(o.cfg.BroadcastInterval, o.broadcastLast)
	}
}

func (o *Orchestrator) tracking(gen int) bool {
	return !o.finished && o.state.Status == Running && o.unsubscribe != nil && gen == o.trackGen
}

func (o *Orchestrator) handleSample(gen int, s position.Sample) {
	if !o.tracking(gen) {
		return
	}
	corrected, delta := o.filter.Apply(s)
	o.last = &corrected

	o.mu.Lock()
	o.state.TotalDistanceMeters += delta
	o.state.TotalCalories = Calories(o.cfg.WeightKg, o.state.TotalDistanceMeters/1000)
	o.mu.Unlock()

	o.roster.Upsert(Entry{
		UserID:    o.cfg.Self.UserID,
		Nickname:  o.cfg.Self.Nickname,
		Latitude:  corrected.Latitude,
		Longitude: corrected.Longitude,
	})
	o.notifyRoster()
	o.notifyStatus()

	if o.cfg.BroadcastOnSample {
		o.sendLocation(corrected)
	}
}

func (o *Orchestrator) handleSensorError(gen int, err error) {
	if !o.tracking(gen) {
		return
	}
	log.Printf("session: position error, tracking halted: %v", err)
	// A sensor callback may be blocked in post until this loop moves on, so
	// the release must not wait here.
	if release := o.unsubscribe; release != nil {
		o.unsubscribe = nil
		go release()
	}
	o.report(err)
}

func (o *Orchestrator) tick() {
	if o.finished || o.state.Status != Running {
		return
	}
	o.mu.Lock()
	o.state.ElapsedSeconds++
	o.mu.Unlock()
	o.notifyStatus()
}

func (o *Orchestrator) broadcastLast() {
	if o.finished || o.state.Status != Running || o.last == nil {
		return
	}
	o.sendLocation(*o.last)
}

func (o *Orchestrator) sendLocation(s position.Sample) {
	total := o.State().TotalDistanceMeters
	if err := o.channel.Send(o.env.Location(s.Latitude, s.Longitude, &total)); err != nil && !errors.Is(err, room.ErrNotOpen) {
		o.report(err)
	}
}

func (o *Orchestrator) handleLocation(msg room.Message) {
	if o.finished || msg.Latitude == nil || msg.Longitude == nil {
		return
	}
	o.roster.Upsert(Entry{
		UserID:    msg.UserID,
		Nickname:  msg.Sender,
		Latitude:  *msg.Latitude,
		Longitude: *msg.Longitude,
	})
	o.notifyRoster()
}

func (o *Orchestrator) handleMembers(msg room.Message) {
	if o.finished {
		return
	}
	members := msg.Members()
	o.mu.Lock()
	o.room.Members = members
	o.mu.Unlock()
	if o.hooks.OnMembers != nil {
		o.hooks.OnMembers(append([]room.Member(nil), members...))
	}
}

func (o *Orchestrator) handleQuit() {
	if o.finished {
		return
	}
	if o.state.Status != Countdown && o.state.Status != Running {
		log.Printf("session: ignoring QUIT while %s", o.state.Status)
		return
	}
	o.finish(ExitQuit)
}

// finish tears the run down exactly once. A run that got past Waiting is
// saved; one that never started is not.
func (o *Orchestrator) finish(reason ExitReason) {
	if o.finished {
		return
	}
	o.finished = true
	active := o.state.Status == Countdown || o.state.Status == Running
	close(o.done)

	if o.countdown != nil {
		o.countdown.Stop()
		o.countdown = nil
	}
	o.stopTracking()
	if o.stopTick != nil {
		o.stopTick()
		o.stopTick = nil
	}
	if o.stopBroadcast != nil {
		o.stopBroadcast()
		o.stopBroadcast = nil
	}
	if reason == ExitLeft {
		o.roster.Reset()
	}

	o.setStatus(Ended)
	_ = o.channel.Close()

	saved := false
	if active {
		saved = o.save()
	}
	o.exit = Exit{Reason: reason, State: o.State(), Saved: saved}
}

func (o *Orchestrator) save() bool {
	if o.saver == nil {
		return false
	}
	st := o.State()
	result := record.Result{
		UserID:   o.cfg.Self.UserID.String(),
		PartyID:  o.cfg.PartyID,
		Distance: st.TotalDistanceMeters,
		Time:     st.ElapsedSeconds,
		Kcal:     st.TotalCalories,
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.SaveTimeout)
	defer cancel()
	if err := o.saver.SaveResult(ctx, result); err != nil {
		log.Printf("session: save result failed: %v", err)
		o.report(err)
		return false
	}
	return true
}

func (o *Orchestrator) stopTracking() {
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
}

// every posts fn at interval d until stopped or the session is done.
func (o *Orchestrator) every(d time.Duration, fn func()) (stop func()) {
	ticker := time.NewTicker(d)
	quit := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-o.done:
				return
			case <-ticker.C:
				o.post(fn)
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(quit) }) }
}

func (o *Orchestrator) setStatus(s Status) {
	o.mu.Lock()
	o.state.Status = s
	o.mu.Unlock()
	o.notifyStatus()
}

func (o *Orchestrator) notifyStatus() {
	if o.hooks.OnStatus != nil {
		o.hooks.OnStatus(o.State())
	}
}

func (o *Orchestrator) notifyRoster() {
	if o.hooks.OnRoster != nil {
		o.hooks.OnRoster(o.roster.Snapshot())
	}
}

func (o *Orchestrator) report(err error) {
	if err != nil && o.hooks.OnError != nil {
		o.hooks.OnError(err)
	}
}
