// Package ucitest runs scripted in-memory UCI engines for tests.
package ucitest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/park285/smartchess/internal/engine/uci"
)

// Position is what the engine was asked to search.
type Position struct {
	FEN   string
	Moves []string
}

// Responder returns the candidate moves (best first) for a search.
type Responder func(Position) []string

// Spawn returns a uci.SpawnFunc backed by an in-memory engine.
func Spawn(respond Responder) uci.SpawnFunc {
	return func(ctx context.Context, opt uci.Options) (*uci.Session, error) {
		cmdR, cmdW := io.Pipe()
		outR, outW := io.Pipe()
		go serve(cmdR, outW, respond)
		return uci.Attach(ctx, cmdW, outR, opt)
	}
}

func serve(in io.ReadCloser, out io.WriteCloser, respond Responder) {
	defer out.Close()
	defer in.Close()
	var pos Position
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		var reply string
		switch fields[0] {
		case "uci":
			reply = "id name ucitest\nuciok\n"
		case "isready":
			reply = "readyok\n"
		case "position":
			pos = parsePosition(fields[1:])
		case "go":
			moves := respond(pos)
			var b strings.Builder
			for i, mv := range moves {
				fmt.Fprintf(&b, "info depth 8 multipv %d score cp %d pv %s\n", i+1, 40-10*i, mv)
			}
			best := "(none)"
			if len(moves) > 0 {
				best = moves[0]
			}
			fmt.Fprintf(&b, "bestmove %s\n", best)
			reply = b.String()
		case "quit":
			return
		}
		if reply != "" {
			if _, err := io.WriteString(out, reply); err != nil {
				return
			}
		}
	}
}

func parsePosition(fields []string) Position {
	var pos Position
	i := 0
	if i < len(fields) && fields[i] == "startpos" {
		pos.FEN = "startpos"
		i++
	} else if i < len(fields) && fields[i] == "fen" {
		i++
		var parts []string
		for i < len(fields) && fields[i] != "moves" {
			parts = append(parts, fields[i])
			i++
		}
		pos.FEN = strings.Join(parts, " ")
	}
	if i < len(fields) && fields[i] == "moves" {
		pos.Moves = append([]string(nil), fields[i+1:]...)
	}
	return pos
}
