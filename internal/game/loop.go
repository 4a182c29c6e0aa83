// Package game runs one board: it owns the tracked position and the arbiter
// and applies every event in order on a single goroutine.
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/smartchess/internal/arbiter"
	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/channel"
	"github.com/park285/smartchess/internal/config"
	"github.com/park285/smartchess/internal/feedback"
	"github.com/park285/smartchess/internal/movelog"
	"github.com/park285/smartchess/internal/msgcat"
	"github.com/park285/smartchess/internal/obslog"
	"github.com/park285/smartchess/internal/rules"
)

var (
	ErrLoopStopped = errors.New("game loop stopped")
	// ErrTakebackNotAllowed: the remote game does not allow takebacks.
	ErrTakebackNotAllowed = errors.New("takeback not allowed")
	// ErrLocalTurn: an inbound move for a side played on this board.
	ErrLocalTurn = errors.New("move belongs to the local side")
)

const (
	flashDuration  = 1500 * time.Millisecond
	hintTimeout    = 10 * time.Second
	eventBuffer    = 64
	channelBuffer  = 16
	storeOpTimeout = 5 * time.Second
)

// Rules is the oracle plus what the loop needs to record moves.
type Rules interface {
	rules.Oracle
	SAN(pos board.Position, m board.CandidateMove) string
	Outcome(pos board.Position) rules.Result
	Opening(start board.Position, moves []string) string
}

// Device receives moves the player has to carry out, and hints.
type Device interface {
	SendMove(m board.CandidateMove) error
	SendHint(m board.CandidateMove) error
}

// Archiver stores finished games.
type Archiver interface {
	Save(ctx context.Context, g movelog.Game) error
}

// PositionView is told about every position change, e.g. a preview renderer.
type PositionView interface {
	SetPosition(pos board.Position, last *board.ConfirmedMove)
}

type Config struct {
	Mode    string
	Arbiter arbiter.Config
	// Start defaults to the standard starting position.
	Start          *board.Position
	OutboxAttempts int
	OutboxBackoff  func(attempt int) time.Duration
	// TickInterval drives settling and timeouts; zero disables the internal ticker.
	TickInterval time.Duration
}

type Deps struct {
	Rules    Rules
	Channel  channel.Channel
	Log      movelog.Log
	Archive  Archiver
	Sink     feedback.Sink
	Device   Device
	Preview  PositionView
	Messages *msgcat.Catalog
	// Notify receives every player-facing message.
	Notify func(text string)
	Now    func() time.Time
}

// Loop is the single owner of the game state.
type Loop struct {
	cfg   Config
	start board.Position
	// setup is the configured start; attached games may bring their own
	setup    board.Position
	rules    Rules
	ch       channel.Channel
	log      movelog.Log
	archive  Archiver
	device   Device
	preview  PositionView
	msgs     *msgcat.Catalog
	notify   func(string)
	now      func() time.Time
	tracker  *board.Tracker
	arb      *arbiter.Arbiter
	director *feedback.Director
	outbox   *channel.Outbox

	events   chan Event
	chEvents chan channel.Event
	done     chan struct{}
	runCtx   context.Context

	// owned by the loop goroutine
	gameID       string
	attached     bool
	phase        feedback.Phase
	localSide    board.Side
	opponent     string
	pending      []channel.Event
	hint         *board.CandidateMove
	hintGen      int
	invalidUntil time.Time
	lastLocal    bool
	disconnected bool
	result       rules.Result
	startedAt    time.Time

	// opening caches the opening name for openingKey, the moves it was computed from.
	opening    string
	openingKey string

	statusMu sync.RWMutex
	status   Status
}

func New(cfg Config, deps Deps) (*Loop, error) {
	if deps.Rules == nil {
		return nil, errors.New("game: rules are required")
	}
	if deps.Channel == nil {
		return nil, errors.New("game: channel is required")
	}
	switch cfg.Mode {
	case config.ModeLocal, config.ModeComputer, config.ModeRemote, config.ModePuzzle:
	default:
		return nil, fmt.Errorf("game: unknown mode %q", cfg.Mode)
	}
	start := board.StartingPosition()
	if cfg.Start != nil {
		start = *cfg.Start
	}
	if deps.Log == nil {
		deps.Log = movelog.NewMemory()
	}
	if deps.Sink == nil {
		deps.Sink = feedback.SinkFunc(func(context.Context, feedback.Frame) error { return nil })
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	l := &Loop{
		cfg:      cfg,
		start:    start,
		setup:    start,
		rules:    deps.Rules,
		ch:       deps.Channel,
		log:      deps.Log,
		archive:  deps.Archive,
		device:   deps.Device,
		preview:  deps.Preview,
		msgs:     deps.Messages,
		notify:   deps.Notify,
		now:      deps.Now,
		tracker:  board.NewTracker(start),
		director: feedback.NewDirector(deps.Sink),
		events:   make(chan Event, eventBuffer),
		chEvents: make(chan channel.Event, channelBuffer),
		done:     make(chan struct{}),
		phase:    feedback.PhaseOpening,
	}
	// the physical board is unknown until the first reading
	l.arb = arbiter.New(deps.Rules, cfg.Arbiter, 0)
	l.arb.SetLocal()

	var opts []channel.OutboxOption
	if cfg.OutboxAttempts > 0 {
		opts = append(opts, channel.WithAttempts(cfg.OutboxAttempts))
	}
	if cfg.OutboxBackoff != nil {
		opts = append(opts, channel.WithBackoff(cfg.OutboxBackoff))
	}
	l.outbox = channel.NewOutbox(deps.Channel, l.reportOutbox, opts...)
	return l, nil
}

// Post hands ev to the loop. It blocks while the queue is full.
func (l *Loop) Post(ctx context.Context, ev Event) error {
	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}
	select {
	case l.events <- ev:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is done or a ShutdownEvent arrives.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := l.begin(ctx); err != nil {
		return err
	}

	var tick <-chan time.Time
	if l.cfg.TickInterval > 0 {
		t := time.NewTicker(l.cfg.TickInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-l.events:
			if _, ok := ev.(ShutdownEvent); ok {
				obslog.L().Info("game_loop_shutdown")
				return nil
			}
			l.handle(ctx, ev)
		case ev := <-l.chEvents:
			l.handle(ctx, RemoteEvent{Event: ev})
		case at := <-tick:
			l.handle(ctx, TickEvent{At: at})
		}
	}
}

// begin starts the channel and the outbox and asks for the starting setup.
func (l *Loop) begin(ctx context.Context) error {
	l.runCtx = ctx
	go l.outbox.Run(ctx)
	now := l.now()
	l.arb.Expect(l.start.Occupancy(), now)
	l.say("game.setup", nil)
	if err := l.ch.Start(ctx, l.chEvents); err != nil {
		return fmt.Errorf("start channel: %w", err)
	}
	obslog.L().Info("game_loop_started", zap.String("mode", l.cfg.Mode))
	l.render(ctx, now)
	return nil
}

func (l *Loop) handle(ctx context.Context, ev Event) {
	now := l.now()
	switch e := ev.(type) {
	case SnapshotEvent:
		now = stamp(e.Snapshot.At, now)
		l.decide(ctx, l.arb.Observe(l.tracker.CurrentPosition(), e.Snapshot), now)
	case TickEvent:
		now = stamp(e.At, now)
		l.decide(ctx, l.arb.Tick(l.tracker.CurrentPosition(), now), now)
	case SelectionEvent:
		now = stamp(e.At, now)
		l.decide(ctx, l.arb.Select(l.tracker.CurrentPosition(), e.Selection, now), now)
	case RemoteEvent:
		now = stamp(e.Event.At, now)
		l.onChannel(ctx, e.Event, now)
	case ResetEvent:
		now = stamp(e.At, now)
		l.onReset(ctx, e.Rewind, now)
	case HintRequest:
		l.onHint(ctx)
	case hintResult:
		l.onHintResult(e)
	case NewGameEvent:
		l.onNewGame(ctx, stamp(e.At, now))
	case AckEvent:
		if l.phase == feedback.PhaseOver {
			l.onNewGame(ctx, stamp(e.At, now))
		}
	case ResignEvent:
		l.onResign(ctx)
	case DrawOfferEvent:
		l.onDrawOffer(ctx, stamp(e.At, now))
	}
	l.render(ctx, now)
}

func stamp(at, fallback time.Time) time.Time {
	if at.IsZero() {
		return fallback
	}
	return at
}

// decide acts on an arbiter decision.
func (l *Loop) decide(ctx context.Context, d arbiter.Decision, now time.Time) {
	switch d.Kind {
	case arbiter.Commit:
		l.commitLocal(ctx, d.Move, now)
	case arbiter.Reject:
		if l.phase != feedback.PhaseOver {
			l.flash(now)
			l.say(rejectKey(d.Err), nil)
		}
	case arbiter.Prompt:
		p := l.arb.Prompt()
		if p.Kind == arbiter.PromotionPrompt {
			l.say("prompt.promotion", nil)
		} else {
			l.say("prompt.choice", map[string]any{"Choices": p.Choices})
		}
	case arbiter.Mirrored:
		if l.phase == feedback.PhaseOpening && l.attached {
			l.phase = feedback.PhasePlaying
			obslog.L().Info("board_ready", zap.String("game_id", l.gameID))
		}
	case arbiter.Mismatch:
		l.flash(now)
		l.say("reject.mismatch", nil)
	}
	l.drain(ctx, now)
}

func rejectKey(err error) string {
	switch {
	case errors.Is(err, arbiter.ErrNotYourTurn):
		return "reject.not_your_turn"
	case errors.Is(err, arbiter.ErrIllegalMove):
		return "reject.illegal"
	case errors.Is(err, arbiter.ErrConfirmationTimeout):
		return "reject.timeout"
	case errors.Is(err, arbiter.ErrAbandoned):
		return "reject.abandoned"
	}
	return "reject.unrecognized"
}

func (l *Loop) flash(now time.Time) { l.invalidUntil = now.Add(flashDuration) }

// commitLocal records a move made on the board and sends it to the channel.
func (l *Loop) commitLocal(ctx context.Context, m board.CandidateMove, now time.Time) {
	pos := l.tracker.CurrentPosition()
	cm := board.Confirm(m, pos.Turn, l.rules.SAN(pos, m), now)
	next, err := l.tracker.Apply(cm)
	if err != nil {
		l.desync(ctx, err, now)
		return
	}
	cm, _ = l.tracker.Last()
	l.arb.Committed(next.Occupancy())
	l.lastLocal = true
	l.clearHint()

	obslog.L().Info("move_committed",
		zap.String("game_id", l.gameID),
		zap.Int("ply", cm.Ply),
		zap.String("uci", cm.UCI()),
		zap.String("san", cm.SAN),
		zap.Stringer("tag", cm.Tag),
	)
	l.appendEntry(ctx, movelog.MoveEntry(l.gameID, cm, movelog.SourceBoard, next))
	l.say("move.committed", map[string]any{"Ply": cm.Ply, "Side": cm.Side, "SAN": cm.SAN})
	if err := l.outbox.Enqueue(cm); err != nil {
		obslog.L().Error("outbox_enqueue_failed", zap.String("uci", cm.UCI()), zap.Error(err))
	}
	l.afterMove(ctx, next, now)
}

// applyRemote records a move made elsewhere and asks the player to mirror it.
func (l *Loop) applyRemote(ctx context.Context, ev channel.Event, now time.Time) {
	pos := l.tracker.CurrentPosition()
	if l.arb.IsLocal(pos.Turn) {
		obslog.L().Error("remote_move_rejected",
			zap.String("uci", ev.UCI),
			zap.Stringer("turn", pos.Turn),
			zap.Error(ErrLocalTurn),
		)
		return
	}
	m, err := board.MoveFromUCI(pos, ev.UCI)
	if err == nil && !l.rules.IsLegal(pos, m) {
		err = fmt.Errorf("%w: %s", arbiter.ErrIllegalMove, ev.UCI)
	}
	if err != nil {
		obslog.L().Error("remote_move_rejected", zap.String("uci", ev.UCI), zap.String("fen", pos.FEN()), zap.Error(err))
		return
	}
	cm := board.Confirm(m, pos.Turn, l.rules.SAN(pos, m), now)
	next, err := l.tracker.Apply(cm)
	if err != nil {
		l.desync(ctx, err, now)
		return
	}
	cm, _ = l.tracker.Last()
	l.lastLocal = false
	l.clearHint()

	source := movelog.SourceRemote
	switch l.cfg.Mode {
	case config.ModeComputer:
		source = movelog.SourceEngine
	case config.ModePuzzle:
		source = movelog.SourcePuzzle
	}
	obslog.L().Info("remote_move_applied",
		zap.String("game_id", l.gameID),
		zap.Int("ply", cm.Ply),
		zap.String("uci", cm.UCI()),
		zap.String("source", source),
	)
	l.appendEntry(ctx, movelog.MoveEntry(l.gameID, cm, source, next))
	if l.device != nil {
		if err := l.device.SendMove(m); err != nil {
			obslog.L().Warn("device_send_move_failed", zap.Error(err))
		}
	}
	l.say("move.remote", map[string]any{"Side": cm.Side, "SAN": cm.SAN, "From": m.From, "To": m.To})
	l.afterMove(ctx, next, now)
	if l.phase != feedback.PhaseOver {
		l.decide(ctx, l.arb.Expect(next.Occupancy(), now), now)
	}
}

func (l *Loop) afterMove(ctx context.Context, next board.Position, now time.Time) {
	l.publishPosition()
	if res := l.rules.Outcome(next); res.Over {
		l.finish(ctx, res, now)
	}
}

// drain applies remote moves that arrived while a local action was open.
func (l *Loop) drain(ctx context.Context, now time.Time) {
	for len(l.pending) > 0 && !l.arb.Busy() && l.phase != feedback.PhaseOver {
		ev := l.pending[0]
		l.pending = l.pending[1:]
		l.applyRemote(ctx, ev, now)
	}
}

func (l *Loop) onChannel(ctx context.Context, ev channel.Event, now time.Time) {
	obslog.L().Debug("channel_event", zap.Stringer("kind", ev.Kind), zap.String("uci", ev.UCI))
	switch ev.Kind {
	case channel.EventAttached:
		l.startGame(ctx, ev, now)
	case channel.EventMove:
		if !l.attached || l.phase == feedback.PhaseOver {
			return
		}
		if l.arb.Busy() {
			l.pending = append(l.pending, ev)
			obslog.L().Info("remote_move_queued", zap.String("uci", ev.UCI), zap.Int("queued", len(l.pending)))
			return
		}
		l.applyRemote(ctx, ev, now)
	case channel.EventGameOver:
		if l.phase == feedback.PhaseOver {
			return
		}
		// moves still queued are part of the game
		l.drainAll(ctx, now)
		l.finish(ctx, resultFromPGN(ev.Result, ev.Reason), now)
	case channel.EventDisconnected:
		if !l.disconnected {
			l.disconnected = true
			l.say("channel.disconnected", nil)
		}
	case channel.EventReconnected:
		if l.disconnected {
			l.disconnected = false
			l.say("channel.reconnected", nil)
		}
	case channel.EventRetract:
		l.retract(ctx, ev, now)
	case channel.EventSessionLost:
		l.disconnected = true
		l.say("channel.session_lost", nil)
		if l.phase != feedback.PhaseOver {
			l.finish(ctx, rules.Result{Method: "session lost"}, now)
		}
	}
}

func (l *Loop) drainAll(ctx context.Context, now time.Time) {
	if len(l.pending) == 0 {
		return
	}
	l.arb.Reset(l.tracker.CurrentPosition().Occupancy())
	l.drain(ctx, now)
}

func resultFromPGN(pgn, method string) rules.Result {
	switch pgn {
	case "1-0":
		return rules.Result{Over: true, Winner: board.White, Method: method}
	case "0-1":
		return rules.Result{Over: true, Winner: board.Black, Method: method}
	case "1/2-1/2":
		return rules.Result{Over: true, Draw: true, Method: method}
	}
	return rules.Result{Method: method}
}

func (l *Loop) startGame(ctx context.Context, ev channel.Event, now time.Time) {
	l.start = l.setup
	if ev.FEN != "" {
		start, err := board.ParseFEN(ev.FEN)
		if err != nil {
			obslog.L().Error("game_start_rejected", zap.String("game_id", ev.GameID), zap.Error(err))
			return
		}
		l.start = start
	}
	l.gameID = ev.GameID
	l.attached = true
	l.localSide = ev.Side
	l.opponent = ev.Opponent
	if l.cfg.Mode == config.ModeLocal {
		l.arb.SetLocal(board.White, board.Black)
	} else {
		l.arb.SetLocal(ev.Side)
	}
	l.tracker.Reset(l.start)
	l.pending = nil
	l.clearHint()
	l.result = rules.Result{}
	l.lastLocal = false
	l.disconnected = false
	l.invalidUntil = time.Time{}
	l.startedAt = now
	l.phase = feedback.PhaseOpening

	obslog.L().Info("game_attached",
		zap.String("game_id", ev.GameID),
		zap.String("mode", l.cfg.Mode),
		zap.Stringer("side", ev.Side),
		zap.String("opponent", ev.Opponent),
	)
	l.appendEntry(ctx, movelog.Entry{
		GameID: ev.GameID,
		Kind:   movelog.KindStart,
		Side:   ev.Side.String(),
		FEN:    l.start.FEN(),
		At:     now,
	})
	if p, ok := l.log.(movelog.Pointer); ok {
		sctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
		if err := p.SetCurrent(sctx, ev.GameID); err != nil {
			obslog.L().Warn("movelog_set_current_failed", zap.Error(err))
		}
		cancel()
	}
	l.publishPosition()
	l.say("game.start", map[string]any{"GameID": ev.GameID, "Side": ev.Side, "Opponent": ev.Opponent})
	l.decide(ctx, l.arb.Expect(l.start.Occupancy(), now), now)
}

// finish ends the game and archives it.
func (l *Loop) finish(ctx context.Context, res rules.Result, now time.Time) {
	l.phase = feedback.PhaseOver
	l.result = res
	l.pending = nil
	l.clearHint()
	l.arb.SetLocal()
	l.arb.Reset(l.arb.Physical())

	obslog.L().Info("game_over",
		zap.String("game_id", l.gameID),
		zap.String("result", res.PGN()),
		zap.String("method", res.Method),
		zap.Int("moves", l.tracker.MoveCount()),
	)
	l.appendEntry(ctx, movelog.Entry{
		GameID: l.gameID,
		Ply:    l.tracker.MoveCount(),
		Kind:   movelog.KindResult,
		Result: res.PGN(),
		Method: res.Method,
		FEN:    l.tracker.CurrentPosition().FEN(),
		At:     now,
	})
	l.say("game.over", map[string]any{"Result": res.PGN(), "Method": res.Method})
	l.archiveGame(ctx, res, now)
}

func (l *Loop) archiveGame(ctx context.Context, res rules.Result, now time.Time) {
	if l.archive == nil || l.gameID == "" {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	entries, err := l.log.Entries(sctx, l.gameID)
	if err != nil {
		obslog.L().Error("archive_entries_failed", zap.String("game_id", l.gameID), zap.Error(err))
		return
	}
	white, black := l.players()
	g := movelog.Game{
		ID:        l.gameID,
		Mode:      l.cfg.Mode,
		White:     white,
		Black:     black,
		Result:    res.PGN(),
		Method:    res.Method,
		Entries:   entries,
		StartedAt: l.startedAt,
		EndedAt:   now,
	}
	if err := l.archive.Save(sctx, g); err != nil {
		obslog.L().Error("archive_save_failed", zap.String("game_id", l.gameID), zap.Error(err))
	}
}

func (l *Loop) players() (white, black string) {
	if l.cfg.Mode == config.ModeLocal {
		return "board", "board"
	}
	other := l.opponent
	if other == "" {
		other = l.cfg.Mode
	}
	if l.localSide == board.White {
		return "board", other
	}
	return other, "board"
}

// desync handles a move that no longer fits the tracked position. The game
// cannot continue; the board has to be set up from scratch.
func (l *Loop) desync(ctx context.Context, err error, now time.Time) {
	obslog.L().Error("session_desync", zap.String("game_id", l.gameID), zap.Error(err))
	l.pending = nil
	l.clearHint()
	l.tracker.Reset(l.start)
	l.publishPosition()
	l.phase = feedback.PhaseOpening
	l.say("game.setup", nil)
	l.arb.Expect(l.start.Occupancy(), now)
	if l.cfg.Mode == config.ModeRemote {
		// wait for the next game to start remotely
		l.attached = false
		l.arb.SetLocal()
		return
	}
	if err := l.ch.Start(ctx, l.chEvents); err != nil {
		obslog.L().Error("channel_restart_failed", zap.Error(err))
	}
}

func (l *Loop) onReset(ctx context.Context, rewind bool, now time.Time) {
	if !l.attached || l.phase == feedback.PhaseOpening {
		return
	}
	if !rewind {
		obslog.L().Info("action_reset", zap.Stringer("state", l.arb.State()))
		l.decide(ctx, l.arb.Expect(l.tracker.CurrentPosition().Occupancy(), now), now)
		return
	}
	if err := l.takeback(ctx, now); err != nil {
		obslog.L().Info("takeback_refused", zap.Error(err))
	}
}

// takeback rewinds whole moves until a local side is to move again. In a
// game against the engine that is usually its reply plus the player's move.
func (l *Loop) takeback(ctx context.Context, now time.Time) error {
	if l.cfg.Mode == config.ModeRemote {
		return ErrTakebackNotAllowed
	}
	if l.phase != feedback.PhasePlaying {
		return fmt.Errorf("%w: game is over", ErrTakebackNotAllowed)
	}
	plies := rewindPlies(l.tracker.History(), l.arb.IsLocal)
	if plies == 0 {
		return board.ErrNothingToRewind
	}
	return l.rewind(ctx, plies, "move.takeback", now)
}

// retract takes back a local move the channel turned down.
func (l *Loop) retract(ctx context.Context, ev channel.Event, now time.Time) {
	if !l.attached || l.phase != feedback.PhasePlaying {
		return
	}
	last, ok := l.tracker.Last()
	if !ok || last.UCI() != ev.UCI || !l.arb.IsLocal(last.Side) {
		obslog.L().Info("retract_ignored", zap.String("uci", ev.UCI))
		return
	}
	if l.arb.Busy() {
		l.arb.Reset(l.arb.Physical())
	}
	if err := l.rewind(ctx, 1, "move.refused", now); err != nil {
		obslog.L().Error("retract_failed", zap.Error(err))
		return
	}
	l.flash(now)
}

func (l *Loop) rewind(ctx context.Context, plies int, message string, now time.Time) error {
	for i := 0; i < plies; i++ {
		if _, err := l.tracker.Rewind(); err != nil {
			return err
		}
	}
	if r, ok := l.ch.(channel.Rewinder); ok {
		if err := r.Rewind(ctx, plies); err != nil {
			obslog.L().Warn("channel_rewind_failed", zap.Error(err))
		}
	}
	l.pending = nil
	l.clearHint()
	last, ok := l.tracker.Last()
	l.lastLocal = ok && l.arb.IsLocal(last.Side)

	pos := l.tracker.CurrentPosition()
	obslog.L().Info("takeback", zap.String("game_id", l.gameID), zap.Int("plies", plies), zap.String("fen", pos.FEN()))
	for i := 0; i < plies; i++ {
		l.appendEntry(ctx, movelog.Entry{
			GameID: l.gameID,
			Ply:    l.tracker.MoveCount(),
			Kind:   movelog.KindTakeback,
			FEN:    pos.FEN(),
			At:     now,
		})
	}
	l.publishPosition()
	l.say(message, map[string]any{"Plies": plies})
	l.decide(ctx, l.arb.Expect(pos.Occupancy(), now), now)
	return nil
}

// rewindPlies counts the moves to take back so that a local side is to move
// again, or 0 when no such point exists.
func rewindPlies(history []board.ConfirmedMove, local func(board.Side) bool) int {
	for n := 1; n <= len(history); n++ {
		if local(history[len(history)-n].Side) {
			return n
		}
	}
	return 0
}

func (l *Loop) onHint(ctx context.Context) {
	pos := l.tracker.CurrentPosition()
	if l.cfg.Mode == config.ModeRemote {
		l.say("hint.unavailable", nil)
		return
	}
	if l.phase != feedback.PhasePlaying || !l.arb.IsLocal(pos.Turn) {
		return
	}
	gen := l.hintGen
	go func() {
		hctx, cancel := context.WithTimeout(ctx, hintTimeout)
		defer cancel()
		m, ok, err := l.rules.Suggest(hctx, pos)
		_ = l.Post(ctx, hintResult{gen: gen, move: m, ok: ok, err: err})
	}()
}

func (l *Loop) onHintResult(r hintResult) {
	if r.gen != l.hintGen {
		return
	}
	if r.err != nil {
		obslog.L().Warn("hint_failed", zap.Error(r.err))
		return
	}
	if !r.ok {
		l.say("hint.unavailable", nil)
		return
	}
	m := r.move
	l.hint = &m
	if l.device != nil {
		if err := l.device.SendHint(m); err != nil {
			obslog.L().Warn("device_send_hint_failed", zap.Error(err))
		}
	}
	l.say("hint.suggest", map[string]any{"UCI": m.UCI()})
}

func (l *Loop) clearHint() {
	l.hint = nil
	l.hintGen++
}

func (l *Loop) onNewGame(ctx context.Context, now time.Time) {
	obslog.L().Info("new_game_requested", zap.String("game_id", l.gameID), zap.String("mode", l.cfg.Mode))
	if l.cfg.Mode == config.ModeRemote {
		// the next game is started remotely; leaving this one means resigning it
		if l.attached && l.phase != feedback.PhaseOver {
			l.onResign(ctx)
		}
		return
	}
	if l.attached && l.phase == feedback.PhasePlaying && l.tracker.MoveCount() > 0 {
		l.finish(ctx, rules.Result{Method: "abandoned"}, now)
	}
	if err := l.ch.Start(ctx, l.chEvents); err != nil {
		obslog.L().Error("channel_restart_failed", zap.Error(err))
	}
}

func (l *Loop) onResign(ctx context.Context) {
	if !l.attached || l.phase == feedback.PhaseOver {
		return
	}
	if err := l.ch.Resign(ctx); err != nil {
		obslog.L().Error("resign_failed", zap.Error(err))
	}
}

func (l *Loop) onDrawOffer(ctx context.Context, now time.Time) {
	if !l.attached || l.phase != feedback.PhasePlaying {
		return
	}
	if d, ok := l.ch.(channel.DrawOfferer); ok {
		if err := d.OfferDraw(ctx); err != nil {
			obslog.L().Warn("draw_offer_failed", zap.Error(err))
		}
		return
	}
	if l.cfg.Mode == config.ModeLocal {
		// both players are at the board
		l.finish(ctx, rules.Result{Over: true, Draw: true, Method: "agreement"}, now)
	}
}

// reportOutbox runs on the outbox goroutine.
func (l *Loop) reportOutbox(ev channel.Event) {
	if l.runCtx == nil {
		return
	}
	channel.Deliver(l.runCtx, l.chEvents, ev)
}

func (l *Loop) appendEntry(ctx context.Context, e movelog.Entry) {
	sctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	if err := l.log.Append(sctx, e); err != nil {
		obslog.L().Error("movelog_append_failed",
			zap.String("game_id", e.GameID),
			zap.String("kind", string(e.Kind)),
			zap.Int("ply", e.Ply),
			zap.Error(err),
		)
	}
}

func (l *Loop) publishPosition() {
	if l.preview == nil {
		return
	}
	var last *board.ConfirmedMove
	if m, ok := l.tracker.Last(); ok {
		last = &m
	}
	l.preview.SetPosition(l.tracker.CurrentPosition(), last)
}

func (l *Loop) say(key string, data any) {
	text := l.msgs.Text(key, data)
	obslog.L().Info("announce", zap.String("key", key), zap.String("text", text))
	if l.notify != nil {
		l.notify(text)
	}
}

// Tracker exposes the tracked game for read-only use.
func (l *Loop) Tracker() *board.Tracker { return l.tracker }
