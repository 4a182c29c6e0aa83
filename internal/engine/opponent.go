package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/channel"
	"github.com/park285/smartchess/internal/obslog"
)

// Opponent is the channel for games against the engine. It follows the game
// as a start FEN plus UCI moves and answers each submitted move with a reply.
type Opponent struct {
	eng   *Engine
	human board.Side

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	events   chan<- channel.Event
	gameID   string
	startFEN string
	moves    []string
	// gen invalidates replies computed for a position that was since rewound.
	gen int
	wg  sync.WaitGroup
}

func NewOpponent(eng *Engine, human board.Side) *Opponent {
	return &Opponent{eng: eng, human: human}
}

func (o *Opponent) Start(ctx context.Context, events chan<- channel.Event) error {
	o.mu.Lock()
	if o.cancel != nil {
		// a new game replaces the previous one
		o.cancel()
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.events = events
	o.gameID = uuid.NewString()
	o.startFEN = "startpos"
	o.moves = nil
	o.gen++
	id, rctx := o.gameID, o.ctx
	o.mu.Unlock()

	obslog.L().Info("engine_game_start", zap.String("game_id", id), zap.String("human", o.human.String()))
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if !channel.Deliver(rctx, events, channel.Event{Kind: channel.EventAttached, GameID: id, Side: o.human}) {
			return
		}
		if o.human == board.Black {
			o.think()
		}
	}()
	return nil
}

// Submit records the human move and starts the engine reply in the background.
func (o *Opponent) Submit(_ context.Context, m board.ConfirmedMove) error {
	o.mu.Lock()
	if o.events == nil {
		o.mu.Unlock()
		return channel.ErrNotAttached
	}
	o.moves = append(o.moves, m.UCI())
	o.mu.Unlock()
	if m.Side == o.human {
		o.think()
	}
	return nil
}

func (o *Opponent) think() {
	o.mu.Lock()
	ctx, events, gen := o.ctx, o.events, o.gen
	fen, moves := o.startFEN, append([]string(nil), o.moves...)
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		reply, err := o.eng.Reply(ctx, fen, moves)
		if err != nil {
			if ctx.Err() == nil {
				obslog.L().Error("engine_reply_failed", zap.Error(err))
				channel.Deliver(ctx, events, channel.Event{Kind: channel.EventDisconnected, Err: err})
			}
			return
		}
		o.mu.Lock()
		stale := gen != o.gen || len(o.moves) != len(moves)
		if !stale {
			o.moves = append(o.moves, reply.Move)
		}
		o.mu.Unlock()
		if stale {
			return
		}
		channel.Deliver(ctx, events, channel.Event{Kind: channel.EventMove, UCI: reply.Move})
	}()
}

// Rewind drops the last plies and any reply still being computed.
func (o *Opponent) Rewind(_ context.Context, plies int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	n := max(len(o.moves)-plies, 0)
	o.moves = o.moves[:n]
	return nil
}

// Resign ends the game in the engine's favour.
func (o *Opponent) Resign(context.Context) error {
	o.mu.Lock()
	ctx, events, id := o.ctx, o.events, o.gameID
	o.gen++
	o.mu.Unlock()
	if events == nil {
		return channel.ErrNotAttached
	}
	result := "0-1"
	if o.human == board.Black {
		result = "1-0"
	}
	go channel.Deliver(ctx, events, channel.Event{Kind: channel.EventGameOver, GameID: id, Result: result, Reason: "resign"})
	return nil
}

func (o *Opponent) Close() error {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()
	return nil
}
