// Package sim stands in for the board hardware: a console that moves pieces
// and presses buttons, and a terminal that shows the LED frames.
package sim

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/feedback"
)

type paint struct {
	rgb  feedback.RGB
	attr color.Attribute
	mark byte
}

var palette = []paint{
	{feedback.Off, color.BgBlack, ' '},
	{feedback.White, color.BgHiWhite, 'W'},
	{feedback.Red, color.BgRed, 'R'},
	{feedback.Green, color.BgGreen, 'G'},
	{feedback.Blue, color.BgBlue, 'B'},
	{feedback.Cyan, color.BgCyan, 'C'},
	{feedback.Magenta, color.BgMagenta, 'M'},
	{feedback.Yellow, color.BgHiYellow, 'Y'},
	{feedback.Orange, color.BgYellow, 'O'},
	{feedback.DarkMark, color.BgHiBlack, '.'},
	{feedback.LightMark, color.BgWhite, ':'},
}

func nearest(c feedback.RGB) paint {
	best, bestD := palette[0], -1
	for _, p := range palette {
		dr, dg, db := int(c.R)-int(p.rgb.R), int(c.G)-int(p.rgb.G), int(c.B)-int(p.rgb.B)
		if d := dr*dr + dg*dg + db*db; bestD < 0 || d < bestD {
			best, bestD = p, d
		}
	}
	return best
}

// Terminal draws frames as an 8x8 grid, rank 8 on top. It is a feedback.Sink.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
}

func NewTerminal(out io.Writer) *Terminal { return &Terminal{out: out} }

func (t *Terminal) Show(_ context.Context, f feedback.Frame) error {
	var b strings.Builder
	if f.Effect != feedback.EffectNone {
		fmt.Fprintf(&b, "  [%s]\n", f.Effect)
	}
	for rank := 7; rank >= 0; rank-- {
		fmt.Fprintf(&b, "%d ", rank+1)
		for file := 0; file < 8; file++ {
			sq, _ := board.NewSquare(file, rank)
			p := nearest(f.Squares[sq])
			b.WriteString(color.New(p.attr, color.FgBlack).Sprintf(" %c ", p.mark))
		}
		b.WriteByte('\n')
	}
	b.WriteString("   a  b  c  d  e  f  g  h\n")

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.out, b.String())
	return err
}
