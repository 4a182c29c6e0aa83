package puzzle

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/channel"
	"github.com/park285/smartchess/internal/obslog"
)

var ErrNoSolutionMove = errors.New("no solution move left")

// Fetcher loads the puzzle for the next attempt.
type Fetcher func(ctx context.Context) (Puzzle, error)

// Channel plays the reply side of a puzzle. A solver move that is not the
// solution is retracted; a correct one is answered with the next reply.
type Channel struct {
	fetch Fetcher

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	events chan<- channel.Event
	gameID string
	cur    Puzzle
	solver board.Side
	// moves is the game so far as the loop has it, wrong tries included.
	moves []string
	gen   int
	wg    sync.WaitGroup
}

func NewChannel(fetch Fetcher) *Channel {
	return &Channel{fetch: fetch}
}

func (c *Channel) Start(ctx context.Context, events chan<- channel.Event) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.events = nil
	c.gen++
	rctx, gen := c.ctx, c.gen
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		p, err := c.fetch(rctx)
		var start board.Position
		if err == nil {
			start, err = p.Start()
		}
		if err != nil {
			if rctx.Err() == nil {
				obslog.L().Error("puzzle_fetch_failed", zap.Error(err))
				channel.Deliver(rctx, events, channel.Event{Kind: channel.EventDisconnected, Err: err})
			}
			return
		}
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.events = events
		c.gameID = uuid.NewString()
		c.cur = p
		c.solver = start.Turn
		c.moves = nil
		id := c.gameID
		c.mu.Unlock()

		obslog.L().Info("puzzle_start",
			zap.String("game_id", id),
			zap.String("puzzle_id", p.ID),
			zap.Int("rating", p.Rating),
			zap.Stringer("solver", start.Turn),
			zap.Int("solution_plies", len(p.Solution)),
		)
		channel.Deliver(rctx, events, channel.Event{
			Kind:     channel.EventAttached,
			GameID:   id,
			Side:     start.Turn,
			Opponent: "puzzle " + p.ID,
			FEN:      p.FEN,
		})
	}()
	return nil
}

// onTrack reports whether the moves so far follow the solution.
func (c *Channel) onTrack() bool {
	return len(c.moves) <= len(c.cur.Solution) && slices.Equal(c.moves, c.cur.Solution[:len(c.moves)])
}

// Submit checks a solver move against the solution.
func (c *Channel) Submit(_ context.Context, m board.ConfirmedMove) error {
	c.mu.Lock()
	if c.events == nil {
		c.mu.Unlock()
		return channel.ErrNotAttached
	}
	ctx, events, id := c.ctx, c.events, c.gameID
	c.moves = append(c.moves, m.UCI())
	var out []channel.Event
	switch {
	case m.Side != c.solver:
	case !c.onTrack():
		obslog.L().Info("puzzle_wrong_move", zap.String("puzzle_id", c.cur.ID), zap.String("uci", m.UCI()))
		out = append(out, channel.Event{Kind: channel.EventRetract, GameID: id, UCI: m.UCI()})
	default:
		if n := len(c.moves); n < len(c.cur.Solution) {
			reply := c.cur.Solution[n]
			c.moves = append(c.moves, reply)
			out = append(out, channel.Event{Kind: channel.EventMove, GameID: id, UCI: reply})
		}
		if len(c.moves) == len(c.cur.Solution) {
			obslog.L().Info("puzzle_solved", zap.String("puzzle_id", c.cur.ID))
			out = append(out, channel.Event{Kind: channel.EventGameOver, GameID: id, Result: winFor(c.solver), Reason: "solved"})
		}
	}
	c.mu.Unlock()
	c.send(ctx, events, out)
	return nil
}

func (c *Channel) send(ctx context.Context, events chan<- channel.Event, out []channel.Event) {
	if len(out) == 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for _, ev := range out {
			if !channel.Deliver(ctx, events, ev) {
				return
			}
		}
	}()
}

func winFor(side board.Side) string {
	if side == board.White {
		return "1-0"
	}
	return "0-1"
}

// Rewind drops the last plies, wrong tries included.
func (c *Channel) Rewind(_ context.Context, plies int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moves = c.moves[:max(len(c.moves)-plies, 0)]
	return nil
}

// BestMove gives the next solution move as a hint. The position is implied by
// the moves played so far.
func (c *Channel) BestMove(context.Context, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == nil || !c.onTrack() || len(c.moves) >= len(c.cur.Solution) {
		return "", ErrNoSolutionMove
	}
	return c.cur.Solution[len(c.moves)], nil
}

// Resign gives up the puzzle.
func (c *Channel) Resign(context.Context) error {
	c.mu.Lock()
	ctx, events, id, solver := c.ctx, c.events, c.gameID, c.solver
	c.mu.Unlock()
	if events == nil {
		return channel.ErrNotAttached
	}
	c.send(ctx, events, []channel.Event{{Kind: channel.EventGameOver, GameID: id, Result: winFor(solver.Other()), Reason: "gave up"}})
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}
