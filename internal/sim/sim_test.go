package sim

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/feedback"
	"github.com/park285/smartchess/internal/hwlink"
)

func TestConsoleCommands(t *testing.T) {
	start := board.StartingPosition().Occupancy()
	script := strings.Join([]string{
		"lift e2",
		"place e4",
		"move d7d5",
		"move e4d5",
		"bogus",
		"q",
		"2",
		"hint",
		"quit",
		"lift a1",
	}, "\n")
	var out bytes.Buffer
	c := NewConsole(strings.NewReader(script), &out, start)

	var snaps []board.Occupancy
	var inputs []hwlink.Input
	err := c.Run(context.Background(),
		func(s board.Snapshot) { snaps = append(snaps, s.Occupancy) },
		func(in hwlink.Input) { inputs = append(inputs, in) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	sq := board.MustSquare
	afterE4 := start.With(sq("e2"), false).With(sq("e4"), true)
	afterD5 := afterE4.With(sq("d7"), false).With(sq("d5"), true)
	if len(snaps) != 7 {
		t.Fatalf("got %d snapshots, want 7", len(snaps))
	}
	if snaps[1] != afterE4 || snaps[3] != afterD5 {
		t.Fatalf("pawn moves not simulated")
	}
	// capture lifts the target, then the mover, then places it
	if snaps[4] != afterD5.With(sq("d5"), false) || snaps[6] != afterD5.With(sq("e4"), false) {
		t.Fatalf("capture sequence wrong")
	}
	if c.Occupancy() != snaps[6] {
		t.Fatalf("console lost track of the board")
	}
	if len(inputs) != 3 || inputs[0].Promotion != board.Queen || inputs[1].Index != 2 || inputs[2].Button != hwlink.ButtonHint {
		t.Fatalf("inputs %+v", inputs)
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Fatalf("bad command not reported: %q", out.String())
	}
}

func TestTerminalDrawsGrid(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	var f feedback.Frame
	f.Effect = feedback.EffectFlash
	f.Squares[board.MustSquare("a8")] = feedback.Yellow
	f.Squares[board.MustSquare("h1")] = feedback.Orange
	if err := NewTerminal(&out).Show(context.Background(), f); err != nil {
		t.Fatalf("Show: %v", err)
	}
	lines := strings.Split(out.String(), "\n")
	if lines[0] != "  [flash]" {
		t.Fatalf("effect line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "8  Y ") || !strings.HasSuffix(lines[8], " O ") {
		t.Fatalf("grid wrong:\n%s", out.String())
	}
}
