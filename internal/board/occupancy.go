package board

import (
	"fmt"
	"math/bits"
	"strconv"
	"time"
)

// Occupancy is the physical presence bitmap; bit i is square i.
type Occupancy uint64

func (o Occupancy) Has(sq Square) bool {
	return sq.Valid() && o&(1<<sq) != 0
}

func (o Occupancy) With(sq Square, occupied bool) Occupancy {
	if !sq.Valid() {
		return o
	}
	if occupied {
		return o | 1<<sq
	}
	return o &^ (1 << sq)
}

func (o Occupancy) Count() int { return bits.OnesCount64(uint64(o)) }

// Squares lists occupied squares in ascending order.
func (o Occupancy) Squares() []Square {
	out := make([]Square, 0, o.Count())
	for v := uint64(o); v != 0; v &= v - 1 {
		out = append(out, Square(bits.TrailingZeros64(v)))
	}
	return out
}

// Hex renders the bitmap as 16 hex digits, the format used on the UART link.
func (o Occupancy) Hex() string { return fmt.Sprintf("%016x", uint64(o)) }

func ParseOccupancyHex(s string) (Occupancy, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse occupancy %q: %w", s, err)
	}
	return Occupancy(v), nil
}

// Snapshot is one reading of the sensor grid.
type Snapshot struct {
	Occupancy Occupancy
	At        time.Time
}

// Change is the occupancy transition of one square during a physical action.
type Change uint8

const (
	// Lifted: occupied before, empty after.
	Lifted Change = iota + 1
	// Placed: empty before, occupied after.
	Placed
	// Replaced: occupied before and after, but seen empty in between (a capture target).
	Replaced
)

func (c Change) String() string {
	switch c {
	case Lifted:
		return "lifted"
	case Placed:
		return "placed"
	case Replaced:
		return "replaced"
	}
	return "unknown"
}

type SquareDelta struct {
	Square Square
	Change Change
}

func (d SquareDelta) String() string { return d.Square.String() + ":" + d.Change.String() }
