package remote

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/smartchess/internal/obslog"
)

type StreamState int

const (
	StreamDisconnected StreamState = iota
	StreamConnecting
	StreamConnected
	StreamReconnecting
	// StreamFailed: reconnect attempts are exhausted.
	StreamFailed
)

func (s StreamState) String() string {
	switch s {
	case StreamConnecting:
		return "connecting"
	case StreamConnected:
		return "connected"
	case StreamReconnecting:
		return "reconnecting"
	case StreamFailed:
		return "failed"
	}
	return "disconnected"
}

type MessageCallback func(msg *Message)

type StateCallback func(state StreamState)

// Stream reads JSON messages from one websocket endpoint and reconnects a
// bounded number of times when the connection drops.
type Stream struct {
	url string

	connM sync.Mutex
	conn  *websocket.Conn

	state  StreamState
	stateM sync.RWMutex

	onMsg   MessageCallback
	onState StateCallback

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	headerProvider HeaderProvider
}

func NewStream(url string, maxReconnectAttempts int, headers HeaderProvider, onMsg MessageCallback, onState StateCallback) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		url:                  url,
		state:                StreamDisconnected,
		onMsg:                onMsg,
		onState:              onState,
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
		rootCtx:              ctx,
		rootCancel:           cancel,
		headerProvider:       headers,
	}
}

func (s *Stream) State() StreamState {
	s.stateM.RLock()
	defer s.stateM.RUnlock()
	return s.state
}

func (s *Stream) Connect(ctx context.Context) error {
	switch s.State() {
	case StreamConnected, StreamConnecting:
		return nil
	}
	s.setState(StreamConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := s.dial(dialCtx)
	if err != nil {
		s.setState(StreamFailed)
		s.scheduleReconnect()
		return err
	}
	s.start(conn)
	return nil
}

func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      s.buildHeaders(),
	})
	return conn, err
}

func (s *Stream) start(conn *websocket.Conn) {
	s.connM.Lock()
	s.conn = conn
	s.connM.Unlock()
	s.setState(StreamConnected)

	s.wg.Add(2)
	go s.listen(conn)
	go s.pingLoop(conn)
}

func (s *Stream) listen(conn *websocket.Conn) {
	defer s.wg.Done()
	for {
		var msg Message
		if err := wsjson.Read(s.rootCtx, conn, &msg); err != nil {
			if s.isStopping() {
				return
			}
			obslog.L().Warn("stream_read_failed", zap.String("url", s.url), zap.Error(err))
			s.setState(StreamDisconnected)
			s.dropConn(conn, websocket.StatusGoingAway, "reconnect")
			s.scheduleReconnect()
			return
		}
		if s.onMsg != nil {
			s.onMsg(&msg)
		}
	}
}

func (s *Stream) pingLoop(conn *websocket.Conn) {
	defer s.wg.Done()
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			if s.current() != conn {
				return
			}
			ctx, cancel := context.WithTimeout(s.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				// closing the connection ends listen, which reconnects
				s.dropConn(conn, websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (s *Stream) scheduleReconnect() {
	if s.maxReconnectAttempts <= 0 || s.isStopping() {
		s.setState(StreamFailed)
		return
	}
	s.setState(StreamReconnecting)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for attempt := 1; attempt <= s.maxReconnectAttempts; attempt++ {
			select {
			case <-s.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}

			dialCtx, cancel := context.WithTimeout(s.rootCtx, 10*time.Second)
			conn, err := s.dial(dialCtx)
			cancel()
			if err != nil {
				obslog.L().Warn("stream_reconnect_failed", zap.String("url", s.url), zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			s.start(conn)
			return
		}
		s.setState(StreamFailed)
	}()
}

func (s *Stream) setState(state StreamState) {
	s.stateM.Lock()
	changed := s.state != state
	s.state = state
	s.stateM.Unlock()
	if changed && s.onState != nil {
		s.onState(state)
	}
}

func (s *Stream) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if conn := s.current(); conn != nil {
		s.dropConn(conn, websocket.StatusNormalClosure, "close")
	}
	s.rootCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *Stream) current() *websocket.Conn {
	s.connM.Lock()
	defer s.connM.Unlock()
	return s.conn
}

func (s *Stream) dropConn(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	s.connM.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.connM.Unlock()
	_ = conn.Close(code, reason)
}

func (s *Stream) isStopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Stream) buildHeaders() http.Header {
	hdr := http.Header{}
	if s.headerProvider == nil {
		return hdr
	}
	for k, v := range s.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
