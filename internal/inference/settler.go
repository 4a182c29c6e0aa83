package inference

import (
	"time"

	"github.com/park285/smartchess/internal/board"
)

// Settler turns raw sensor readings into settled physical actions.
//
// A per-square change is accepted once the raw reading has held for the
// debounce interval; shorter flickers are bounce and never reach the delta
// set. An action is settled when no accepted change happened for the
// settle window.
type Settler struct {
	debounce time.Duration
	window   time.Duration

	baseline board.Occupancy
	stable   board.Occupancy
	raw      board.Occupancy
	since    [64]time.Time

	touched    board.Occupancy
	emptied    board.Occupancy
	lastChange time.Time
}

func NewSettler(debounce, window time.Duration) *Settler {
	return &Settler{debounce: debounce, window: window}
}

// Rebase starts a new action from occ, discarding anything accumulated.
func (s *Settler) Rebase(occ board.Occupancy) {
	s.baseline, s.stable, s.raw = occ, occ, occ
	s.since = [64]time.Time{}
	s.touched, s.emptied = 0, 0
	s.lastChange = time.Time{}
}

// Observe feeds a raw reading and reports whether any square change was accepted.
func (s *Settler) Observe(snap board.Snapshot) bool {
	changed := s.raw ^ snap.Occupancy
	for _, sq := range changed.Squares() {
		if snap.Occupancy.Has(sq) != s.stable.Has(sq) {
			s.since[sq] = snap.At
		} else {
			s.since[sq] = time.Time{}
		}
	}
	s.raw = snap.Occupancy
	return s.Advance(snap.At)
}

// Advance promotes raw changes that outlived the debounce interval.
func (s *Settler) Advance(now time.Time) bool {
	accepted := false
	for _, sq := range (s.raw ^ s.stable).Squares() {
		if s.since[sq].IsZero() || now.Sub(s.since[sq]) < s.debounce {
			continue
		}
		occupied := s.raw.Has(sq)
		s.stable = s.stable.With(sq, occupied)
		s.touched = s.touched.With(sq, true)
		if !occupied {
			s.emptied = s.emptied.With(sq, true)
		}
		s.since[sq] = time.Time{}
		s.lastChange = now
		accepted = true
	}
	return accepted
}

// Active reports whether the current action touched any square.
func (s *Settler) Active() bool { return s.touched != 0 }

// Reverted reports an action whose squares all returned to the baseline.
func (s *Settler) Reverted() bool { return s.Active() && s.stable == s.baseline && s.raw == s.stable }

// Settled reports that the board has been quiet for the settle window.
func (s *Settler) Settled(now time.Time) bool {
	if !s.Active() || s.raw != s.stable {
		return false
	}
	return now.Sub(s.lastChange) >= s.window
}

func (s *Settler) Stable() board.Occupancy   { return s.stable }
func (s *Settler) Baseline() board.Occupancy { return s.baseline }
func (s *Settler) LastChange() time.Time     { return s.lastChange }

// Deltas builds the delta set of the action against pos.
func (s *Settler) Deltas(pos board.Position) []board.SquareDelta {
	return Collect(pos, s.baseline, s.stable, s.emptied)
}

// Hold ends the current action without moving the baseline. The physical
// board may still differ from it; later changes start a new action measured
// against the same baseline.
func (s *Settler) Hold() {
	s.touched, s.emptied = 0, 0
	s.lastChange = time.Time{}
}
