package puzzle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/channel"
)

const italian = "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3"

func TestFromGame(t *testing.T) {
	for _, text := range []string{"e4 e5 Nf3 Nc6", "1. e4 e5 2. Nf3 Nc6 *", "1.e4 e5 2.Nf3 Nc6 Bc4"} {
		p, err := FromGame("Pz1", text, 3, []string{"F1C4", "g8f6", "d2d3"})
		if err != nil {
			t.Fatalf("%q: FromGame: %v", text, err)
		}
		start, err := p.Start()
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if start.Turn != board.White || start.At(board.MustSquare("c6")) != (board.Piece{Kind: board.Knight, Side: board.Black}) || start.Fullmove != 3 {
			t.Fatalf("%q: start = %s", text, p.FEN)
		}
		if diff := cmp.Diff([]string{"f1c4", "g8f6", "d2d3"}, p.Solution); diff != "" {
			t.Fatalf("solution (-want +got):\n%s", diff)
		}
	}

	bad := []struct {
		name     string
		text     string
		ply      int
		solution []string
	}{
		{"short game", "e4 e5", 3, []string{"f1c4"}},
		{"garbage move", "e4 e5 Qx9 Nc6", 3, []string{"f1c4"}},
		{"illegal solution", "e4 e5 Nf3 Nc6", 3, []string{"f1c4", "f1c4"}},
		{"no solution", "e4 e5 Nf3 Nc6", 3, nil},
	}
	for _, tc := range bad {
		if _, err := FromGame("Pz1", tc.text, tc.ply, tc.solution); !errors.Is(err, ErrBadPuzzle) {
			t.Fatalf("%s: err = %v, want ErrBadPuzzle", tc.name, err)
		}
	}
}

func confirm(t *testing.T, pos board.Position, uci string) (board.ConfirmedMove, board.Position) {
	t.Helper()
	m, err := board.MoveFromUCI(pos, uci)
	if err != nil {
		t.Fatalf("MoveFromUCI(%s): %v", uci, err)
	}
	next, err := pos.Apply(m)
	if err != nil {
		t.Fatalf("Apply(%s): %v", uci, err)
	}
	return board.Confirm(m, pos.Turn, "", time.Now()), next
}

func next(t *testing.T, events <-chan channel.Event) channel.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no event")
		return channel.Event{}
	}
}

func TestChannelFollowsTheSolution(t *testing.T) {
	p := Puzzle{ID: "Pz1", FEN: italian, Solution: []string{"f1c4", "g8f6", "d2d3"}}
	c := NewChannel(func(context.Context) (Puzzle, error) { return p, nil })
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()
	events := make(chan channel.Event, 8)

	if err := c.Start(ctx, events); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ev := next(t, events)
	if ev.Kind != channel.EventAttached || ev.Side != board.White || ev.FEN != italian || ev.Opponent != "puzzle Pz1" {
		t.Fatalf("attach = %+v", ev)
	}
	pos, err := p.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if hint, err := c.BestMove(ctx, pos.FEN()); err != nil || hint != "f1c4" {
		t.Fatalf("hint = %q, %v", hint, err)
	}

	wrong, _ := confirm(t, pos, "d2d4")
	if err := c.Submit(ctx, wrong); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ev := next(t, events); ev.Kind != channel.EventRetract || ev.UCI != "d2d4" {
		t.Fatalf("wrong move answered with %+v", ev)
	}
	if _, err := c.BestMove(ctx, ""); !errors.Is(err, ErrNoSolutionMove) {
		t.Fatalf("hint off the solution: %v", err)
	}
	if err := c.Rewind(ctx, 1); err != nil {
		t.Fatalf("Rewind: %v", err)
	}

	m, pos := confirm(t, pos, "f1c4")
	if err := c.Submit(ctx, m); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ev := next(t, events); ev.Kind != channel.EventMove || ev.UCI != "g8f6" {
		t.Fatalf("reply = %+v", ev)
	}
	_, pos = confirm(t, pos, "g8f6")

	m, _ = confirm(t, pos, "d2d3")
	if err := c.Submit(ctx, m); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ev := next(t, events); ev.Kind != channel.EventGameOver || ev.Result != "1-0" || ev.Reason != "solved" {
		t.Fatalf("end = %+v", ev)
	}
}

func TestChannelFetchFailure(t *testing.T) {
	boom := errors.New("offline")
	c := NewChannel(func(context.Context) (Puzzle, error) { return Puzzle{}, boom })
	t.Cleanup(func() { _ = c.Close() })
	events := make(chan channel.Event, 1)
	if err := c.Start(context.Background(), events); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if ev := next(t, events); ev.Kind != channel.EventDisconnected || !errors.Is(ev.Err, boom) {
		t.Fatalf("event = %+v", ev)
	}
	m := board.Confirm(board.CandidateMove{}, board.White, "", time.Now())
	if err := c.Submit(context.Background(), m); !errors.Is(err, channel.ErrNotAttached) {
		t.Fatalf("Submit before attach: %v", err)
	}
}

func TestResignLosesThePuzzle(t *testing.T) {
	p := Puzzle{ID: "Pz2", FEN: "4k3/8/8/8/8/8/8/R3K3 b - - 0 1", Solution: []string{"e8d7"}}
	c := NewChannel(func(context.Context) (Puzzle, error) { return p, nil })
	t.Cleanup(func() { _ = c.Close() })
	events := make(chan channel.Event, 2)
	if err := c.Start(context.Background(), events); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if ev := next(t, events); ev.Side != board.Black {
		t.Fatalf("solver = %s", ev.Side)
	}
	if err := c.Resign(context.Background()); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if ev := next(t, events); ev.Kind != channel.EventGameOver || ev.Result != "1-0" {
		t.Fatalf("resign = %+v", ev)
	}
}
