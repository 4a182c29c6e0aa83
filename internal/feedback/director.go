package feedback

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/smartchess/internal/obslog"
)

// Sink shows frames: the LED grid, a terminal, a preview image.
type Sink interface {
	Show(ctx context.Context, f Frame) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, f Frame) error

func (fn SinkFunc) Show(ctx context.Context, f Frame) error { return fn(ctx, f) }

// Fanout shows every frame on all sinks.
type Fanout []Sink

func (fo Fanout) Show(ctx context.Context, f Frame) error {
	var errs []error
	for _, s := range fo {
		if err := s.Show(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Director pushes a frame only when it differs from the last one shown, so
// repeated updates with the same view are free.
type Director struct {
	sink Sink

	mu     sync.Mutex
	last   Frame
	shown  bool
	pushes int
}

func NewDirector(sink Sink) *Director {
	return &Director{sink: sink}
}

// Update composes v and shows it when it changed. A failed push is retried on
// the next update.
func (d *Director) Update(ctx context.Context, v View) (bool, error) {
	f := Compose(v)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shown && f.Equal(d.last) {
		return false, nil
	}
	if err := d.sink.Show(ctx, f); err != nil {
		obslog.L().Warn("feedback_show_failed", zap.Stringer("effect", f.Effect), zap.Error(err))
		return false, err
	}
	d.last, d.shown = f, true
	d.pushes++
	return true, nil
}

// Last returns the frame currently shown.
func (d *Director) Last() (Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.shown
}

// Pushes counts frames sent to the sink.
func (d *Director) Pushes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pushes
}
