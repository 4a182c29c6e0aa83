package hwlink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/feedback"
	"github.com/park285/smartchess/internal/obslog"
)

// Link is the UART connection to the board controller. It is a feedback.Sink.
type Link struct {
	rw     io.ReadWriteCloser
	layout feedback.Layout
	now    func() time.Time

	writeM sync.Mutex
	close  sync.Once
}

// Open opens the serial port at baud, 8N1.
func Open(port string, baud int) (*Link, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", port, err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		obslog.L().Warn("serial_flush_failed", zap.String("port", port), zap.Error(err))
	}
	obslog.L().Info("serial_open", zap.String("port", port), zap.Int("baud", baud))
	return NewLink(p), nil
}

// NewLink wraps any byte stream speaking the controller protocol.
func NewLink(rw io.ReadWriteCloser) *Link {
	return &Link{rw: rw, layout: feedback.BoardLayout, now: time.Now}
}

// Run reads controller lines until ctx is done or the stream ends. Readings
// go to onSnapshot and buttons to onInput, on the reading goroutine.
func (l *Link) Run(ctx context.Context, onSnapshot func(board.Snapshot), onInput func(Input)) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	sc := bufio.NewScanner(l.rw)
	for sc.Scan() {
		msg, err := ParseLine(sc.Text(), l.now())
		if err != nil {
			obslog.L().Debug("serial_line_ignored", zap.String("line", sc.Text()), zap.Error(err))
			continue
		}
		switch {
		case msg.Snapshot != nil && onSnapshot != nil:
			onSnapshot(*msg.Snapshot)
		case msg.Input != nil && onInput != nil:
			onInput(*msg.Input)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("serial read: %w", err)
	}
	return io.EOF
}

func (l *Link) Show(_ context.Context, f feedback.Frame) error {
	return l.writeLine(FrameLine(f, l.layout))
}

func (l *Link) SendMove(m board.CandidateMove) error { return l.writeLine(MoveLine(m)) }

func (l *Link) SendHint(m board.CandidateMove) error { return l.writeLine(HintLine(m)) }

func (l *Link) writeLine(s string) error {
	l.writeM.Lock()
	defer l.writeM.Unlock()
	if _, err := io.WriteString(l.rw, s+"\n"); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

func (l *Link) Close() error {
	var err error
	l.close.Do(func() { err = l.rw.Close() })
	return err
}
