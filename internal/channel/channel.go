package channel

import (
	"context"
	"errors"
	"time"

	"github.com/park285/smartchess/internal/board"
)

var (
	ErrChannelDisconnected = errors.New("channel disconnected")
	// ErrSessionLost ends the current session: outbound moves could not be delivered.
	ErrSessionLost = errors.New("session lost")
	ErrOutboxFull  = errors.New("outbox full")
	ErrNotAttached = errors.New("no game attached")
	// ErrRefused marks a move the peer will never accept; retrying is pointless.
	ErrRefused = errors.New("move refused")
)

// Channel connects the board to whoever plays the other side.
type Channel interface {
	// Start begins delivering events and returns without blocking.
	Start(ctx context.Context, events chan<- Event) error
	Submit(ctx context.Context, m board.ConfirmedMove) error
	Resign(ctx context.Context) error
	Close() error
}

// Rewinder is implemented by channels that allow taking moves back.
type Rewinder interface {
	Rewind(ctx context.Context, plies int) error
}

// DrawOfferer is implemented by channels that accept draw offers.
type DrawOfferer interface {
	OfferDraw(ctx context.Context) error
}

type Kind uint8

const (
	// EventAttached: a game was joined; Side is the local player's colour.
	EventAttached Kind = iota + 1
	EventMove
	EventDisconnected
	EventReconnected
	EventGameOver
	// EventSessionLost: outbound delivery gave up.
	EventSessionLost
	// EventRetract: the peer turned down the local move UCI; it has to be taken back.
	EventRetract
)

func (k Kind) String() string {
	switch k {
	case EventAttached:
		return "attached"
	case EventMove:
		return "move"
	case EventDisconnected:
		return "disconnected"
	case EventReconnected:
		return "reconnected"
	case EventGameOver:
		return "game_over"
	case EventSessionLost:
		return "session_lost"
	case EventRetract:
		return "retract"
	}
	return "unknown"
}

type Event struct {
	Kind   Kind
	GameID string
	Side   board.Side
	// Opponent is the other player's display name when known.
	Opponent string
	// FEN is the starting position of an attached game when it is not the standard one.
	FEN string
	UCI string
	// Result is the PGN result for EventGameOver.
	Result string
	Reason string
	Err    error
	At     time.Time
}

// Deliver sends ev unless ctx is done first.
func Deliver(ctx context.Context, events chan<- Event, ev Event) bool {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
