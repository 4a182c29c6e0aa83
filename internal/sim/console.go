package sim

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/hwlink"
	"github.com/park285/smartchess/internal/obslog"
)

// Console turns typed commands into sensor readings and button presses:
//
//	lift e2 | place e4 | move e2e4 | occ <hex> | reset
//	q r b n | 1..8 | ok | hint | back | draw | new | quit
//
// "move" lifts and places in one go; captures lift the target first.
type Console struct {
	in  io.Reader
	out io.Writer
	now func() time.Time
	occ board.Occupancy
}

func NewConsole(in io.Reader, out io.Writer, initial board.Occupancy) *Console {
	return &Console{in: in, out: out, now: time.Now, occ: initial}
}

// Run reads commands until ctx is done, the input ends or "quit" is typed.
func (c *Console) Run(ctx context.Context, onSnapshot func(board.Snapshot), onInput func(hwlink.Input)) error {
	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fields := strings.Fields(strings.ToLower(sc.Text()))
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		snaps, input, err := c.interpret(fields)
		if err != nil {
			fmt.Fprintf(c.out, "? %v\n", err)
			continue
		}
		for _, occ := range snaps {
			c.occ = occ
			onSnapshot(board.Snapshot{Occupancy: occ, At: c.now()})
		}
		if input != nil {
			onInput(*input)
		}
	}
	if err := sc.Err(); err != nil {
		obslog.L().Warn("console_read_failed", zap.Error(err))
		return err
	}
	return nil
}

// Occupancy returns the simulated board.
func (c *Console) Occupancy() board.Occupancy { return c.occ }

func (c *Console) interpret(fields []string) ([]board.Occupancy, *hwlink.Input, error) {
	arg := func() (string, error) {
		if len(fields) < 2 {
			return "", fmt.Errorf("%s needs an argument", fields[0])
		}
		return fields[1], nil
	}
	switch fields[0] {
	case "lift", "place":
		a, err := arg()
		if err != nil {
			return nil, nil, err
		}
		sq, err := board.ParseSquare(a)
		if err != nil {
			return nil, nil, err
		}
		return []board.Occupancy{c.occ.With(sq, fields[0] == "place")}, nil, nil
	case "move":
		a, err := arg()
		if err != nil {
			return nil, nil, err
		}
		if len(a) != 4 {
			return nil, nil, fmt.Errorf("move wants from and to, e.g. e2e4")
		}
		from, err := board.ParseSquare(a[:2])
		if err != nil {
			return nil, nil, err
		}
		to, err := board.ParseSquare(a[2:])
		if err != nil {
			return nil, nil, err
		}
		var out []board.Occupancy
		occ := c.occ
		if occ.Has(to) {
			occ = occ.With(to, false)
			out = append(out, occ)
		}
		occ = occ.With(from, false)
		out = append(out, occ)
		out = append(out, occ.With(to, true))
		return out, nil, nil
	case "occ":
		a, err := arg()
		if err != nil {
			return nil, nil, err
		}
		occ, err := board.ParseOccupancyHex(a)
		if err != nil {
			return nil, nil, err
		}
		return []board.Occupancy{occ}, nil, nil
	case "reset":
		return []board.Occupancy{board.StartingPosition().Occupancy()}, nil, nil
	}

	token := fields[0]
	if len(token) == 1 && strings.Contains("qrbn", token) {
		token = "btn_" + token
	} else if len(token) == 1 && token[0] >= '1' && token[0] <= '8' {
		token = "btn_" + token
	}
	msg, err := hwlink.ParseLine(token, c.now())
	if err != nil || msg.Input == nil {
		return nil, nil, fmt.Errorf("unknown command %q", fields[0])
	}
	return nil, msg.Input, nil
}
