package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/smartchess/internal/arbiter"
	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/channel"
	"github.com/park285/smartchess/internal/config"
	"github.com/park285/smartchess/internal/engine"
	"github.com/park285/smartchess/internal/feedback"
	"github.com/park285/smartchess/internal/game"
	"github.com/park285/smartchess/internal/hwlink"
	"github.com/park285/smartchess/internal/movelog"
	"github.com/park285/smartchess/internal/msgcat"
	"github.com/park285/smartchess/internal/obslog"
	"github.com/park285/smartchess/internal/preview"
	"github.com/park285/smartchess/internal/puzzle"
	"github.com/park285/smartchess/internal/remote"
	"github.com/park285/smartchess/internal/rules"
	"github.com/park285/smartchess/internal/sim"
	"github.com/park285/smartchess/internal/status"
)

// inputSource produces sensor readings and button presses.
type inputSource interface {
	Run(ctx context.Context, onSnapshot func(board.Snapshot), onInput func(hwlink.Input)) error
}

func main() {
	configPath := flag.String("config", os.Getenv("SMARTBOARD_CONFIG"), "optional YAML config file")
	simulate := flag.Bool("simulate", false, "drive the board from the terminal instead of the serial port")
	flag.Parse()

	if *simulate {
		_ = os.Setenv("SMARTBOARD_SIMULATE", "true")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(obslog.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Console: cfg.Log.Console && !cfg.Simulate,
		File:    cfg.Log.File,
	}); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		obslog.L().Error("smartboard_exit", zap.Error(err))
		obslog.Sync()
		os.Exit(1)
	}
	obslog.L().Info("smartboard_stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				obslog.L().Warn("close_failed", zap.Error(err))
			}
		}
	}()

	messages, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return err
	}
	side, _ := board.ParseSide(cfg.LocalSide)

	var eng *engine.Engine
	if (cfg.Mode == config.ModeLocal || cfg.Mode == config.ModeComputer) && cfg.Engine.Path != "" {
		eng, err = engine.New(engine.Config{
			BinaryPath:         cfg.Engine.Path,
			Threads:            cfg.Engine.Threads,
			HashMB:             cfg.Engine.HashMB,
			PoolSize:           cfg.Engine.PoolSize,
			Level:              cfg.Engine.Level,
			HintMoveTimeMillis: cfg.Engine.HintMoveTimeMS,
			BookPath:           cfg.Engine.BookPath,
		})
		if err != nil {
			return fmt.Errorf("engine init: %w", err)
		}
		closers = append(closers, eng)
	}
	ch, err := openChannel(cfg, eng, side)
	if err != nil {
		return err
	}
	closers = append(closers, ch)

	oracle := rules.NewStandard(nil)
	if eng != nil {
		oracle = rules.NewStandard(eng)
	} else if s, ok := ch.(rules.Suggester); ok {
		// a puzzle hint is the next solution move
		oracle = rules.NewStandard(s)
	}

	logs, err := openLogs(cfg, &closers)
	if err != nil {
		return err
	}
	var archive game.Archiver
	if cfg.Store.DatabaseURL != "" {
		a, err := movelog.NewArchive(cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		closers = append(closers, a)
		archive = a
	}

	renderer := preview.NewRenderer(board.StartingPosition(), side == board.Black)
	deps := game.Deps{
		Rules:    oracle,
		Channel:  ch,
		Log:      logs,
		Archive:  archive,
		Preview:  renderer,
		Messages: messages,
	}

	var src inputSource
	var console *sim.Console
	if cfg.Simulate {
		console = sim.NewConsole(os.Stdin, os.Stdout, board.StartingPosition().Occupancy())
		src = console
		deps.Sink = feedback.Fanout{sim.NewTerminal(os.Stdout), renderer}
		deps.Notify = func(text string) { fmt.Fprintln(os.Stdout, "> "+text) }
	} else {
		link, err := hwlink.Open(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			return err
		}
		closers = append(closers, link)
		src = link
		deps.Sink = feedback.Fanout{link, renderer}
		deps.Device = link
	}

	loop, err := game.New(game.Config{
		Mode: cfg.Mode,
		Arbiter: arbiter.Config{
			Debounce:       cfg.Board.Debounce,
			SettleWindow:   cfg.Board.SettleWindow,
			ConfirmTimeout: cfg.Board.ConfirmTimeout,
		},
		OutboxAttempts: cfg.Board.OutboxAttempts,
		TickInterval:   cfg.Board.TickInterval,
	}, deps)
	if err != nil {
		return err
	}

	if addr := cfg.Status.Listen; addr != "" {
		srv := status.New(loop, logs, renderer)
		go func() {
			if err := srv.ListenAndServe(addr); err != nil {
				obslog.L().Error("status_server_failed", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if console != nil {
		_ = loop.Post(ctx, game.SnapshotEvent{Snapshot: board.Snapshot{Occupancy: console.Occupancy(), At: time.Now()}})
	}
	go func() {
		onSnapshot := func(s board.Snapshot) { _ = loop.Post(ctx, game.SnapshotEvent{Snapshot: s}) }
		onInput := func(in hwlink.Input) {
			if ev, ok := game.FromInput(in); ok {
				_ = loop.Post(ctx, ev)
			}
		}
		err := src.Run(ctx, onSnapshot, onInput)
		if err != nil && !errors.Is(err, context.Canceled) {
			obslog.L().Error("input_stopped", zap.Error(err))
		}
		_ = loop.Post(ctx, game.ShutdownEvent{})
	}()

	obslog.L().Info("smartboard_started",
		zap.String("mode", cfg.Mode),
		zap.String("local_side", side.String()),
		zap.Bool("simulate", cfg.Simulate),
		zap.Bool("hints", oracle.HintsEnabled()),
	)
	err = loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openChannel(cfg *config.Config, eng *engine.Engine, side board.Side) (channel.Channel, error) {
	switch cfg.Mode {
	case config.ModeComputer:
		if eng == nil {
			return nil, errors.New("computer mode needs an engine")
		}
		return engine.NewOpponent(eng, side), nil
	case config.ModePuzzle:
		return puzzle.NewChannel(puzzleSource(cfg)), nil
	case config.ModeRemote:
		headers := remote.BearerToken(cfg.Remote.Token)
		client := remote.NewClient(cfg.Remote.BaseURL, remote.WithHeaderProvider(headers))
		return remote.NewChannel(client, remote.Config{
			StreamURL:            cfg.Remote.StreamURL,
			Username:             cfg.Remote.Username,
			Headers:              headers,
			MaxReconnectAttempts: cfg.Remote.MaxReconnect,
		}), nil
	default:
		return channel.NewLocal(), nil
	}
}

// puzzleSource reads the saved puzzle when one is configured and fetches the
// daily puzzle otherwise.
func puzzleSource(cfg *config.Config) puzzle.Fetcher {
	load := func(ctx context.Context) (remote.DailyPuzzle, error) {
		if path := cfg.Puzzle.File; path != "" {
			f, err := os.Open(path)
			if err != nil {
				return remote.DailyPuzzle{}, fmt.Errorf("open puzzle: %w", err)
			}
			defer f.Close()
			return remote.ReadDailyPuzzle(f)
		}
		var opts []remote.Option
		if cfg.Remote.Token != "" {
			opts = append(opts, remote.WithHeaderProvider(remote.BearerToken(cfg.Remote.Token)))
		}
		return remote.NewClient(cfg.Remote.BaseURL, opts...).DailyPuzzle(ctx)
	}
	return func(ctx context.Context) (puzzle.Puzzle, error) {
		d, err := load(ctx)
		if err != nil {
			return puzzle.Puzzle{}, err
		}
		p, err := puzzle.FromGame(d.Puzzle.ID, d.Game.PGN, d.Puzzle.InitialPly, d.Puzzle.Solution)
		if err != nil {
			return puzzle.Puzzle{}, err
		}
		p.Rating = d.Puzzle.Rating
		return p, nil
	}
}

// openLogs writes to every configured store and reads from the first.
func openLogs(cfg *config.Config, closers *[]io.Closer) (movelog.Multi, error) {
	var logs movelog.Multi
	if cfg.Store.RedisURL != "" {
		r, err := movelog.NewRedis(cfg.Store.RedisURL, cfg.Store.RedisTTL)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, r)
		logs = append(logs, r)
	}
	if cfg.Store.JournalPath != "" {
		j, err := movelog.OpenJournal(cfg.Store.JournalPath)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, j)
		logs = append(logs, j)
	}
	if len(logs) == 0 {
		logs = append(logs, movelog.NewMemory())
	}
	return logs, nil
}
