// Package feedback composes LED frames for the board from the game state.
package feedback

import (
	"fmt"

	"github.com/park285/smartchess/internal/board"
)

type RGB struct{ R, G, B uint8 }

func (c RGB) Hex() string { return fmt.Sprintf("%02x%02x%02x", c.R, c.G, c.B) }

var (
	Off       = RGB{}
	White     = RGB{255, 255, 255}
	Red       = RGB{255, 0, 0}
	Green     = RGB{0, 255, 0}
	Blue      = RGB{0, 0, 255}
	Cyan      = RGB{0, 255, 255}
	Magenta   = RGB{255, 0, 255}
	Yellow    = RGB{255, 255, 0}
	Orange    = RGB{255, 130, 0}
	DarkMark  = RGB{80, 80, 80}
	LightMark = RGB{160, 160, 160}
)

// Effect tells a sink how to animate a frame. Sinks that cannot animate show
// the squares as they are.
type Effect uint8

const (
	EffectNone Effect = iota
	// EffectFlash blinks the frame three times, then returns to the previous one.
	EffectFlash
	EffectGameOver
	// EffectOpening sweeps the squares in along the anti-diagonals.
	EffectOpening
)

func (e Effect) String() string {
	switch e {
	case EffectFlash:
		return "flash"
	case EffectGameOver:
		return "gameover"
	case EffectOpening:
		return "opening"
	}
	return "none"
}

// Frame is one full picture for the 8x8 LED grid, indexed by board.Square.
type Frame struct {
	Effect  Effect
	Squares [64]RGB
}

func (f Frame) Equal(o Frame) bool { return f == o }

func (f *Frame) fill(c RGB) {
	for i := range f.Squares {
		f.Squares[i] = c
	}
}

func (f *Frame) set(sq board.Square, c RGB) {
	if sq.Valid() {
		f.Squares[sq] = c
	}
}

// Layout maps squares onto a serpentine LED strip whose first LED sits under
// the bottom-right square (h1 seen from White).
type Layout struct {
	Width, Height int
}

var BoardLayout = Layout{Width: 8, Height: 8}

// Index returns the strip position of the LED at column x, row y.
func (l Layout) Index(x, y int) int {
	col := x
	if y%2 == 0 {
		col = (l.Width - 1) - x
	}
	return y*l.Width + col
}

// Strip orders the frame's colours as they are clocked out to the LEDs.
func (l Layout) Strip(f Frame) []RGB {
	out := make([]RGB, l.Width*l.Height)
	for sq := board.Square(0); sq < 64; sq++ {
		x, y := sq.File(), sq.Rank()
		if x >= l.Width || y >= l.Height {
			continue
		}
		out[l.Index(x, y)] = f.Squares[sq]
	}
	return out
}

// path lists the squares a sliding move crosses, both ends included.
// Other moves light only their two ends.
func path(from, to board.Square) []board.Square {
	df, dr := to.File()-from.File(), to.Rank()-from.Rank()
	if df != 0 && dr != 0 && abs(df) != abs(dr) {
		return []board.Square{from, to}
	}
	n := max(abs(df), abs(dr))
	sf, sr := sign(df), sign(dr)
	out := make([]board.Square, 0, n+1)
	for i := 0; i <= n; i++ {
		sq, _ := board.NewSquare(from.File()+i*sf, from.Rank()+i*sr)
		out = append(out, sq)
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
