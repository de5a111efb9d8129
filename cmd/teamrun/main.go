package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/GOOTEAKIM/RunUs/internal/config"
	"github.com/GOOTEAKIM/RunUs/internal/position"
	"github.com/GOOTEAKIM/RunUs/internal/record"
	"github.com/GOOTEAKIM/RunUs/internal/room"
	"github.com/GOOTEAKIM/RunUs/internal/session"
)

var (
	errNoTrack = errors.New("TRACK_FILE is required")
	errNoUser  = errors.New("USER_ID is required for a team run")
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig func() config.Config
	commands   io.Reader
	notify     func(chan<- os.Signal, ...os.Signal)
	run        func(context.Context, config.Config, io.Reader) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig: config.Load,
		commands:   os.Stdin,
		notify:     signal.Notify,
		run:        Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := deps.run(ctx, cfg, deps.commands); err != nil {
		log.Printf("teamrun exited with error: %v", err)
	}
}

// Run replays TRACK_FILE as this device's position. With ROOM_ID set it joins
// that room (commands: start, quit, leave); without it runs solo (commands:
// pause, resume, stop).
func Run(ctx context.Context, cfg config.Config, commands io.Reader) error {
	tracker, err := newTracker(cfg)
	if err != nil {
		return err
	}
	if cfg.RoomID == "" {
		final := runSolo(ctx, cfg, tracker, commands)
		log.Printf("solo run finished: %.1f m in %ds, %.1f kcal",
			final.TotalDistanceMeters, final.ElapsedSeconds, final.TotalCalories)
		return nil
	}

	exit, err := runTeam(ctx, cfg, tracker, commands)
	if err != nil {
		return err
	}
	log.Printf("team run finished (%s): %.1f m in %ds, %.1f kcal, saved=%t",
		exit.Reason, exit.State.TotalDistanceMeters, exit.State.ElapsedSeconds, exit.State.TotalCalories, exit.Saved)
	return nil
}

func newTracker(cfg config.Config) (*position.Adapter, error) {
	if cfg.TrackFile == "" {
		return nil, errNoTrack
	}
	track, err := position.LoadTrack(cfg.TrackFile)
	if err != nil {
		return nil, err
	}
	if cfg.TrackInterval > 0 {
		track.Interval = cfg.TrackInterval
	}
	opts := position.Options{HighAccuracy: cfg.HighAccuracy, MaxSampleAge: cfg.MaxSampleAge}
	return position.NewAdapter(position.NewReplaySource(track), opts), nil
}

func sessionConfig(cfg config.Config) session.Config {
	nickname := cfg.Nickname
	if nickname == "" {
		nickname = cfg.UserID
	}
	return session.Config{
		RoomID:            cfg.RoomID,
		PartyID:           cfg.PartyID,
		OwnerID:           room.UserID(cfg.RoomOwnerID),
		Self:              room.Member{UserID: room.UserID(cfg.UserID), Nickname: nickname},
		Countdown:         cfg.Countdown,
		BroadcastInterval: cfg.BroadcastInterval,
		BroadcastOnSample: cfg.BroadcastOnSample,
		WeightKg:          cfg.WeightKg,
		SaveTimeout:       cfg.SaveTimeout,
	}
}

func runTeam(ctx context.Context, cfg config.Config, tracker session.Tracker, commands io.Reader) (session.Exit, error) {
	if cfg.UserID == "" {
		return session.Exit{}, errNoUser
	}
	channel := room.NewClient(room.URLFromAPI(cfg.APIURL), room.WithToken(cfg.AccessToken))
	saver := record.NewClient(cfg.APIURL, cfg.SaveTimeout)

	last := session.Status(-1)
	orch := session.New(sessionConfig(cfg), channel, tracker, saver, session.Hooks{
		OnStatus: func(st session.State) {
			if st.Status != last {
				last = st.Status
				log.Printf("run %s", st.Status)
			}
		},
		OnMembers: func(members []room.Member) {
			log.Printf("in room: %s", room.FormatUserList(members))
		},
		OnError: func(err error) {
			log.Printf("run error: %v", err)
		},
	})

	go readCommands(commands, func(cmd string) bool {
		var err error
		switch cmd {
		case "start":
			err = orch.Start()
		case "quit":
			err = orch.Quit()
		case "leave":
			err = orch.Leave()
		default:
			log.Printf("unknown command %q (start, quit, leave)", cmd)
			return true
		}
		if err != nil {
			log.Printf("%s: %v", cmd, err)
		}
		return !errors.Is(err, session.ErrEnded)
	})

	return orch.Run(ctx)
}

func runSolo(ctx context.Context, cfg config.Config, tracker session.Tracker, commands io.Reader) session.State {
	solo := session.NewSolo(tracker, session.SoloConfig{
		WeightKg: cfg.WeightKg,
		OnError:  func(err error) { log.Printf("run error: %v", err) },
	})
	if err := solo.Start(); err != nil {
		log.Printf("start: %v", err)
	}

	// Closed only by an explicit stop; the end of input leaves the run going
	// until ctx is done.
	stopped := make(chan struct{})
	go func() {
		readCommands(commands, func(cmd string) bool {
			var err error
			switch cmd {
			case "pause":
				err = solo.Pause()
			case "resume":
				err = solo.Resume()
			case "stop":
				close(stopped)
				return false
			default:
				log.Printf("unknown command %q (pause, resume, stop)", cmd)
			}
			if err != nil {
				log.Printf("%s: %v", cmd, err)
			}
			return true
		})
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
	}
	return solo.Stop()
}

// readCommands feeds each non-empty line to handle until it returns false or
// the input ends.
func readCommands(r io.Reader, handle func(string) bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if cmd == "" {
			continue
		}
		if !handle(cmd) {
			return
		}
	}
}
