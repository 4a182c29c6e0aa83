package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/park285/smartchess/internal/board"
)

// Local is the pass-through channel for two players at one board.
// Moves stay on the board; resigning ends the game for the side to move.
type Local struct {
	mu     sync.Mutex
	ctx    context.Context
	events chan<- Event
	gameID string
	turn   board.Side
}

func NewLocal() *Local { return &Local{} }

func (l *Local) Start(ctx context.Context, events chan<- Event) error {
	l.mu.Lock()
	l.ctx, l.events = ctx, events
	l.gameID = uuid.NewString()
	l.turn = board.White
	id := l.gameID
	l.mu.Unlock()
	go Deliver(ctx, events, Event{Kind: EventAttached, GameID: id, Side: board.White})
	return nil
}

func (l *Local) Submit(_ context.Context, m board.ConfirmedMove) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.events == nil {
		return ErrNotAttached
	}
	l.turn = m.Side.Other()
	return nil
}

func (l *Local) Resign(context.Context) error {
	l.mu.Lock()
	ctx, events, loser, id := l.ctx, l.events, l.turn, l.gameID
	l.mu.Unlock()
	if events == nil {
		return ErrNotAttached
	}
	result := "0-1"
	if loser == board.Black {
		result = "1-0"
	}
	go Deliver(ctx, events, Event{Kind: EventGameOver, GameID: id, Result: result, Reason: fmt.Sprintf("%s resigned", loser)})
	return nil
}

func (l *Local) Rewind(_ context.Context, plies int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if plies%2 == 1 {
		l.turn = l.turn.Other()
	}
	return nil
}

func (l *Local) Close() error { return nil }
