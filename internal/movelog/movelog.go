// Package movelog records the moves of each game, in order.
package movelog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/park285/smartchess/internal/board"
)

var ErrNoCurrentGame = errors.New("no current game")

type EntryKind string

const (
	KindStart    EntryKind = "start"
	KindMove     EntryKind = "move"
	KindTakeback EntryKind = "takeback"
	KindResult   EntryKind = "result"
)

// Source tells where a move was made.
const (
	SourceBoard  = "board"
	SourceRemote = "remote"
	SourceEngine = "engine"
	SourcePuzzle = "puzzle"
)

type Entry struct {
	GameID  string    `json:"game_id"`
	Ply     int       `json:"ply"`
	Kind    EntryKind `json:"kind"`
	UCI     string    `json:"uci,omitempty"`
	SAN     string    `json:"san,omitempty"`
	Side    string    `json:"side,omitempty"`
	Special string    `json:"special,omitempty"`
	Source  string    `json:"source,omitempty"`
	FEN     string    `json:"fen,omitempty"`
	Result  string    `json:"result,omitempty"`
	Method  string    `json:"method,omitempty"`
	At      time.Time `json:"at"`
}

// MoveEntry describes a committed move; after is the position it produced.
func MoveEntry(gameID string, m board.ConfirmedMove, source string, after board.Position) Entry {
	e := Entry{
		GameID: gameID,
		Ply:    m.Ply,
		Kind:   KindMove,
		UCI:    m.UCI(),
		SAN:    m.SAN,
		Side:   m.Side.String(),
		Source: source,
		FEN:    after.FEN(),
		At:     m.At,
	}
	if m.Tag != board.TagNone {
		e.Special = m.Tag.String()
	}
	return e
}

// Log is an append-only move record.
type Log interface {
	Append(ctx context.Context, e Entry) error
	Entries(ctx context.Context, gameID string) ([]Entry, error)
}

// Pointer remembers which game is being played.
type Pointer interface {
	SetCurrent(ctx context.Context, gameID string) error
	Current(ctx context.Context) (string, error)
}

// SANs returns the SAN of every move still standing after takebacks.
func SANs(entries []Entry) []string {
	var out []string
	for _, e := range entries {
		switch e.Kind {
		case KindMove:
			out = append(out, e.SAN)
		case KindTakeback:
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		}
	}
	return out
}

// Memory keeps entries in process memory.
type Memory struct {
	mu      sync.Mutex
	games   map[string][]Entry
	current string
}

func NewMemory() *Memory { return &Memory{games: map[string][]Entry{}} }

func (m *Memory) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[e.GameID] = append(m.games[e.GameID], e)
	return nil
}

func (m *Memory) Entries(_ context.Context, gameID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.games[gameID]...), nil
}

func (m *Memory) SetCurrent(_ context.Context, gameID string) error {
	m.mu.Lock()
	m.current = gameID
	m.mu.Unlock()
	return nil
}

func (m *Memory) Current(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == "" {
		return "", ErrNoCurrentGame
	}
	return m.current, nil
}

// Multi writes to every log and reads from the first.
type Multi []Log

func (ml Multi) Append(ctx context.Context, e Entry) error {
	var errs []error
	for _, l := range ml {
		if err := l.Append(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ml Multi) Entries(ctx context.Context, gameID string) ([]Entry, error) {
	if len(ml) == 0 {
		return nil, nil
	}
	return ml[0].Entries(ctx, gameID)
}

func (ml Multi) SetCurrent(ctx context.Context, gameID string) error {
	var errs []error
	for _, l := range ml {
		if p, ok := l.(Pointer); ok {
			if err := p.SetCurrent(ctx, gameID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (ml Multi) Current(ctx context.Context) (string, error) {
	for _, l := range ml {
		if p, ok := l.(Pointer); ok {
			return p.Current(ctx)
		}
	}
	return "", ErrNoCurrentGame
}
