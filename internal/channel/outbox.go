package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/obslog"
)

const (
	defaultOutboxAttempts = 5
	outboxCapacity        = 32
)

// Outbox delivers committed moves to a channel in order, retrying each with
// exponential backoff. Local play continues while moves wait here.
type Outbox struct {
	ch       Channel
	attempts int
	backoff  func(attempt int) time.Duration
	report   func(Event)
	queue    chan board.ConfirmedMove
}

type OutboxOption func(*Outbox)

func WithAttempts(n int) OutboxOption {
	return func(o *Outbox) {
		if n > 0 {
			o.attempts = n
		}
	}
}

func WithBackoff(f func(attempt int) time.Duration) OutboxOption {
	return func(o *Outbox) {
		if f != nil {
			o.backoff = f
		}
	}
}

// NewOutbox reports EventDisconnected on the first failure of a move,
// EventReconnected once a retried move goes through, and EventSessionLost
// when the attempts run out.
func NewOutbox(ch Channel, report func(Event), opts ...OutboxOption) *Outbox {
	o := &Outbox{
		ch:       ch,
		attempts: defaultOutboxAttempts,
		backoff:  BackoffDuration,
		report:   report,
		queue:    make(chan board.ConfirmedMove, outboxCapacity),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Outbox) Enqueue(m board.ConfirmedMove) error {
	select {
	case o.queue <- m:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Run delivers queued moves until ctx is done.
func (o *Outbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-o.queue:
			if err := o.deliver(ctx, m); err != nil {
				if ctx.Err() != nil {
					return
				}
				obslog.L().Error("outbox_give_up", zap.String("uci", m.UCI()), zap.Int("ply", m.Ply), zap.Error(err))
				o.emit(Event{Kind: EventSessionLost, UCI: m.UCI(), Err: fmt.Errorf("%w: %v", ErrSessionLost, err)})
				o.drop()
			}
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, m board.ConfirmedMove) error {
	var lastErr error
	for attempt := 1; attempt <= o.attempts; attempt++ {
		err := o.ch.Submit(ctx, m)
		if err == nil {
			if attempt > 1 {
				o.emit(Event{Kind: EventReconnected})
			}
			return nil
		}
		if errors.Is(err, ErrRefused) {
			return err
		}
		lastErr = err
		obslog.L().Warn("outbox_submit_failed",
			zap.String("uci", m.UCI()),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.attempts),
			zap.Error(err),
		)
		if attempt == 1 {
			o.emit(Event{Kind: EventDisconnected, Err: fmt.Errorf("%w: %v", ErrChannelDisconnected, err)})
		}
		if attempt == o.attempts {
			break
		}
		t := time.NewTimer(o.backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return lastErr
}

// drop discards moves queued behind a failed one; they cannot be delivered out of order.
func (o *Outbox) drop() {
	for {
		select {
		case <-o.queue:
		default:
			return
		}
	}
}

func (o *Outbox) emit(ev Event) {
	if o.report != nil {
		if ev.At.IsZero() {
			ev.At = time.Now()
		}
		o.report(ev)
	}
}

// BackoffDuration doubles from 100ms and stops growing after the sixth attempt.
func BackoffDuration(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}
