package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/smartchess/internal/board"
)

type flakyChannel struct {
	mu       sync.Mutex
	failures int
	calls    int
	got      []string
}

func (f *flakyChannel) Start(context.Context, chan<- Event) error { return nil }
func (f *flakyChannel) Resign(context.Context) error              { return nil }
func (f *flakyChannel) Close() error                              { return nil }

func (f *flakyChannel) Submit(_ context.Context, m board.ConfirmedMove) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("connection refused")
	}
	f.got = append(f.got, m.UCI())
	return nil
}

func move(t *testing.T, uci string) board.ConfirmedMove {
	t.Helper()
	m, err := board.MoveFromUCI(board.StartingPosition(), uci)
	if err != nil {
		t.Fatalf("MoveFromUCI: %v", err)
	}
	return board.Confirm(m, board.White, "", time.Time{})
}

func collect(t *testing.T, events <-chan Event, n int) []Event {
	t.Helper()
	var out []Event
	for len(out) < n {
		select {
		case ev := <-events:
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d/%d events", len(out), n)
		}
	}
	return out
}

func TestOutboxRetriesThenRecovers(t *testing.T) {
	ch := &flakyChannel{failures: 2}
	events := make(chan Event, 8)
	o := NewOutbox(ch, func(ev Event) { events <- ev }, WithAttempts(3), WithBackoff(func(int) time.Duration { return time.Millisecond }))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	if err := o.Enqueue(move(t, "e2e4")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	got := collect(t, events, 2)
	if got[0].Kind != EventDisconnected || !errors.Is(got[0].Err, ErrChannelDisconnected) || got[1].Kind != EventReconnected {
		t.Fatalf("unexpected events %+v", got)
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.calls != 3 || len(ch.got) != 1 || ch.got[0] != "e2e4" {
		t.Fatalf("calls=%d got=%v", ch.calls, ch.got)
	}
}

func TestOutboxGivesUpAfterBoundedAttempts(t *testing.T) {
	ch := &flakyChannel{failures: 100}
	events := make(chan Event, 8)
	o := NewOutbox(ch, func(ev Event) { events <- ev }, WithAttempts(4), WithBackoff(func(int) time.Duration { return time.Millisecond }))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	if err := o.Enqueue(move(t, "d2d4")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	got := collect(t, events, 2)
	if got[1].Kind != EventSessionLost || !errors.Is(got[1].Err, ErrSessionLost) {
		t.Fatalf("unexpected events %+v", got)
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.calls != 4 {
		t.Fatalf("calls=%d, want 4", ch.calls)
	}
}

func TestBackoffDuration(t *testing.T) {
	want := []time.Duration{100, 100, 200, 400, 800, 1600, 3200, 3200}
	for i, w := range want {
		if got := BackoffDuration(i); got != w*time.Millisecond {
			t.Fatalf("BackoffDuration(%d)=%v", i, got)
		}
	}
}

func TestLocalChannel(t *testing.T) {
	l := NewLocal()
	events := make(chan Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := l.Submit(ctx, move(t, "e2e4")); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("Submit before Start err=%v", err)
	}
	if err := l.Start(ctx, events); err != nil {
		t.Fatalf("Start: %v", err)
	}
	att := collect(t, events, 1)[0]
	if att.Kind != EventAttached || att.GameID == "" {
		t.Fatalf("attach event %+v", att)
	}
	if err := l.Submit(ctx, move(t, "e2e4")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := l.Resign(ctx); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	over := collect(t, events, 1)[0]
	if over.Kind != EventGameOver || over.Result != "1-0" {
		t.Fatalf("black resigning should give 1-0: %+v", over)
	}
}
