package preview

import (
	"context"
	"sync"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/feedback"
)

// Renderer keeps the latest position and LED frame and renders them on demand.
// It satisfies feedback.Sink so it can sit beside the hardware link.
type Renderer struct {
	mu    sync.Mutex
	pos   board.Position
	last  *board.ConfirmedMove
	frame *feedback.Frame
	flip  bool
	png   []byte
	dirty bool
}

func NewRenderer(pos board.Position, flip bool) *Renderer {
	return &Renderer{pos: pos, flip: flip, dirty: true}
}

// SetPosition records the tracked position and the move that produced it.
func (r *Renderer) SetPosition(pos board.Position, last *board.ConfirmedMove) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = pos
	if last != nil {
		m := *last
		last = &m
	}
	r.last = last
	r.dirty = true
}

// Show records the frame. Rendering is deferred until PNG is called.
func (r *Renderer) Show(_ context.Context, f feedback.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frame = &f
	r.dirty = true
	return nil
}

// PNG returns the current image, rendering it if anything changed.
func (r *Renderer) PNG(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dirty && r.png != nil {
		return r.png, nil
	}
	data, err := RenderPNG(ctx, r.pos, Options{LastMove: r.last, LEDs: r.frame, Flip: r.flip})
	if err != nil {
		return nil, err
	}
	r.png = data
	r.dirty = false
	return data, nil
}
