package inference

import (
	"errors"
	"fmt"
	"sort"

	"github.com/park285/smartchess/internal/board"
)

var ErrUnrecognizedPhysicalChange = errors.New("unrecognized physical change")

// Diff returns the symmetric difference of two readings as Lifted/Placed deltas.
func Diff(before, after board.Occupancy) []board.SquareDelta {
	var out []board.SquareDelta
	for _, sq := range (before ^ after).Squares() {
		change := board.Placed
		if before.Has(sq) {
			change = board.Lifted
		}
		out = append(out, board.SquareDelta{Square: sq, Change: change})
	}
	return out
}

// Collect builds the delta set of one action. Squares seen empty during the
// action but occupied at both ends count as Replaced only when they hold an
// opponent piece; re-seating own pieces is not part of a move.
func Collect(pos board.Position, baseline, final, emptied board.Occupancy) []board.SquareDelta {
	out := Diff(baseline, final)
	for _, sq := range (baseline & final & emptied).Squares() {
		pc := pos.At(sq)
		if !pc.Empty() && pc.Side != pos.Turn {
			out = append(out, board.SquareDelta{Square: sq, Change: board.Replaced})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Square < out[j].Square })
	return out
}

// Infer classifies a delta set against pos into candidate moves for the side to move.
// Several candidates mean the pattern is ambiguous; none yields ErrUnrecognizedPhysicalChange.
func Infer(pos board.Position, deltas []board.SquareDelta) ([]board.CandidateMove, error) {
	if n := len(deltas); n < 2 || n > 4 {
		return nil, fmt.Errorf("%w: %d squares changed", ErrUnrecognizedPhysicalChange, n)
	}
	side := pos.Turn
	var ownLifted, oppLifted, placed, replaced []board.Square
	for _, d := range deltas {
		switch d.Change {
		case board.Lifted:
			pc := pos.At(d.Square)
			switch {
			case pc.Empty():
				return nil, fmt.Errorf("%w: %s lifted but logically empty", ErrUnrecognizedPhysicalChange, d.Square)
			case pc.Side == side:
				ownLifted = append(ownLifted, d.Square)
			default:
				oppLifted = append(oppLifted, d.Square)
			}
		case board.Placed:
			placed = append(placed, d.Square)
		case board.Replaced:
			replaced = append(replaced, d.Square)
		}
	}

	var out []board.CandidateMove
	add := func(from, to board.Square) {
		c := board.Classify(pos, board.CandidateMove{From: from, To: to, Captured: board.NoSquare})
		trial := c
		if trial.NeedsPromotion() {
			trial = trial.WithPromotion(board.Queen)
		}
		if _, err := pos.Apply(trial); err != nil {
			return
		}
		for _, seen := range out {
			if seen == c {
				return
			}
		}
		out = append(out, c)
	}

	switch {
	case len(ownLifted) == 1 && len(oppLifted) == 0 && len(placed) == 1:
		// plain move; Replaced squares are handled pieces that went back
		add(ownLifted[0], placed[0])
	case len(ownLifted) == 1 && len(oppLifted) == 0 && len(placed) == 0 && len(replaced) > 0:
		for _, to := range replaced {
			add(ownLifted[0], to)
		}
	case len(ownLifted) == 1 && len(oppLifted) == 1 && len(placed) == 1 && len(replaced) == 0:
		add(ownLifted[0], placed[0])
		out = keep(out, func(c board.CandidateMove) bool {
			return c.Tag == board.TagEnPassant && c.Captured == oppLifted[0]
		})
	case len(ownLifted) == 2 && len(oppLifted) == 0 && len(placed) == 2 && len(replaced) == 0:
		for _, tag := range []board.MoveTag{board.TagCastleKingside, board.TagCastleQueenside} {
			kf, kt, rf, rt := board.CastleSquares(side, tag)
			if sameSet(ownLifted, kf, rf) && sameSet(placed, kt, rt) {
				add(kf, kt)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedPhysicalChange, deltas)
	}
	return out, nil
}

// Complete reports whether the deltas contain the whole physical footprint of c.
// A castle whose rook has not moved yet, or an en-passant whose captured pawn is
// still on the board, is incomplete.
func Complete(c board.CandidateMove, side board.Side, deltas []board.SquareDelta) bool {
	has := func(sq board.Square, change board.Change) bool {
		for _, d := range deltas {
			if d.Square == sq && d.Change == change {
				return true
			}
		}
		return false
	}
	switch {
	case c.Tag.IsCastle():
		_, _, rf, rt := board.CastleSquares(side, c.Tag)
		return has(rf, board.Lifted) && has(rt, board.Placed)
	case c.Tag == board.TagEnPassant:
		return has(c.Captured, board.Lifted)
	}
	return true
}

func keep(in []board.CandidateMove, ok func(board.CandidateMove) bool) []board.CandidateMove {
	out := in[:0]
	for _, c := range in {
		if ok(c) {
			out = append(out, c)
		}
	}
	return out
}

func sameSet(got []board.Square, a, b board.Square) bool {
	return len(got) == 2 && ((got[0] == a && got[1] == b) || (got[0] == b && got[1] == a))
}
