package board

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrIllegalTransition means a move no longer fits the tracked position:
	// the logical and physical boards have desynchronized.
	ErrIllegalTransition = errors.New("illegal transition")
	ErrNothingToRewind   = errors.New("nothing to rewind")
)

// Tracker owns the authoritative position and move history.
// Mutations come from a single owner; reads are safe from any goroutine.
type Tracker struct {
	mu        sync.RWMutex
	base      Position
	positions []Position // positions[i] is the position before history[i]; last entry is current
	history   []ConfirmedMove
	counter   int
}

func NewTracker(start Position) *Tracker {
	t := &Tracker{}
	t.Reset(start)
	return t
}

func (t *Tracker) CurrentPosition() Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.positions[len(t.positions)-1]
}

func (t *Tracker) Turn() Side { return t.CurrentPosition().Turn }

// MoveCount is the monotonic count of applied moves since the last reset.
func (t *Tracker) MoveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counter
}

func (t *Tracker) History() []ConfirmedMove {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]ConfirmedMove(nil), t.history...)
}

// Last returns the most recent move, if any.
func (t *Tracker) Last() (ConfirmedMove, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.history) == 0 {
		return ConfirmedMove{}, false
	}
	return t.history[len(t.history)-1], true
}

// Apply commits exactly one move. The stored copy carries the assigned ply.
func (t *Tracker) Apply(m ConfirmedMove) (Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.positions[len(t.positions)-1]
	if m.Side != cur.Turn {
		return cur, fmt.Errorf("%w: %s to move, got %s move %s", ErrIllegalTransition, cur.Turn, m.Side, m.UCI())
	}
	next, err := cur.apply(m.CandidateMove)
	if err != nil {
		return cur, fmt.Errorf("%w: %s: %v", ErrIllegalTransition, m.UCI(), err)
	}
	t.counter++
	m.Ply = t.counter
	t.history = append(t.history, m)
	t.positions = append(t.positions, next)
	return next, nil
}

// Reset starts over from pos with an empty history.
func (t *Tracker) Reset(pos Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.base = pos
	t.positions = []Position{pos}
	t.history = nil
	t.counter = 0
}

// Rewind removes the last move as a whole and restores the position before it.
func (t *Tracker) Rewind() (ConfirmedMove, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.history) == 0 {
		return ConfirmedMove{}, ErrNothingToRewind
	}
	last := t.history[len(t.history)-1]
	t.history = t.history[:len(t.history)-1]
	t.positions = t.positions[:len(t.positions)-1]
	t.counter--
	return last, nil
}

// Base is the position the current history starts from.
func (t *Tracker) Base() Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.base
}
