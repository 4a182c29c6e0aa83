package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/channel"
	"github.com/park285/smartchess/internal/obslog"
)

type Config struct {
	// StreamURL is the websocket base, e.g. wss://example.org.
	StreamURL string
	// Username identifies our side when the stream does not flag it.
	Username             string
	Headers              HeaderProvider
	MaxReconnectAttempts int
}

// Channel waits for a game to start on the account stream, attaches to its
// game stream and forwards the opponent's moves.
type Channel struct {
	client *Client
	cfg    Config

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	events   chan<- channel.Event
	account  Account
	accounts *Stream
	game     *Stream
	gameID   string
	opponent string
	side     board.Side
	attached bool
	over     bool
	// seen holds every move of the game in stream order; ours marks the
	// plies we submitted so their echo is not reported as an opponent move.
	seen []string
	ours map[int]string
	lost bool
	down bool
}

func NewChannel(client *Client, cfg Config) *Channel {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	return &Channel{client: client, cfg: cfg, ours: map[int]string{}}
}

func (c *Channel) Start(ctx context.Context, events chan<- channel.Event) error {
	acct, err := c.client.Account(ctx)
	if err != nil {
		obslog.L().Warn("remote_account_failed", zap.Error(err))
	}
	c.mu.Lock()
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.events = events
	c.account = acct
	c.accounts = NewStream(c.streamURL("/api/stream/event"), c.cfg.MaxReconnectAttempts, c.cfg.Headers, c.onAccountMessage, c.onState)
	s := c.accounts
	c.mu.Unlock()

	if err := s.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %v", channel.ErrChannelDisconnected, err)
	}
	obslog.L().Info("remote_waiting_for_game", zap.String("user", c.me()))
	return nil
}

func (c *Channel) streamURL(path string) string {
	return strings.TrimRight(c.cfg.StreamURL, "/") + path
}

func (c *Channel) me() string {
	if c.cfg.Username != "" {
		return c.cfg.Username
	}
	if c.account.ID != "" {
		return c.account.ID
	}
	return c.account.Username
}

func (c *Channel) onAccountMessage(msg *Message) {
	if msg.Type != "gameStart" {
		return
	}
	id := msg.Game.GameKey()
	if id == "" {
		return
	}
	c.mu.Lock()
	if c.gameID != "" && !c.over {
		c.mu.Unlock()
		return
	}
	if c.game != nil {
		old := c.game
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = old.Close(ctx)
		}()
	}
	c.gameID, c.opponent = id, msg.Game.Opponent.Username
	c.attached, c.over, c.lost = false, false, false
	c.seen, c.ours = nil, map[int]string{}
	ctx := c.ctx
	c.game = NewStream(c.streamURL("/api/board/game/stream/"+id), c.cfg.MaxReconnectAttempts, c.cfg.Headers, c.onGameMessage, c.onState)
	s := c.game
	c.mu.Unlock()

	obslog.L().Info("remote_game_start", zap.String("game_id", id), zap.String("opponent", msg.Game.Opponent.Username))
	if err := s.Connect(ctx); err != nil {
		obslog.L().Warn("remote_game_stream_failed", zap.String("game_id", id), zap.Error(err))
	}
}

func (c *Channel) onGameMessage(msg *Message) {
	switch msg.Type {
	case "gameFull":
		c.attach(msg)
		if msg.State != nil {
			c.sync(*msg.State)
		}
	case "gameState":
		c.sync(msg.GameState)
	}
}

func (c *Channel) attach(msg *Message) {
	c.mu.Lock()
	if c.attached {
		c.mu.Unlock()
		return
	}
	c.side = detectSide(msg.White, msg.Black, c.me())
	c.attached = true
	if c.opponent == "" {
		opp := msg.Black
		if c.side == board.Black {
			opp = msg.White
		}
		c.opponent = opp.Identity()
	}
	ev := channel.Event{Kind: channel.EventAttached, GameID: c.gameID, Side: c.side, Opponent: c.opponent, At: time.Now()}
	c.mu.Unlock()

	obslog.L().Info("remote_attached", zap.String("game_id", ev.GameID), zap.Stringer("side", ev.Side), zap.String("opponent", ev.Opponent))
	c.deliver(ev)
}

// detectSide prefers the stream's own flag, then a name match, then White.
func detectSide(white, black *Player, me string) board.Side {
	switch {
	case white != nil && white.Me:
		return board.White
	case black != nil && black.Me:
		return board.Black
	}
	if me != "" && black != nil && strings.EqualFold(black.Identity(), me) {
		return board.Black
	}
	return board.White
}

func (c *Channel) sync(st GameState) {
	moves := st.MoveList()
	c.mu.Lock()
	var fresh []string
	for i := len(c.seen); i < len(moves); i++ {
		c.seen = append(c.seen, moves[i])
		if c.ours[i] == moves[i] {
			continue
		}
		fresh = append(fresh, moves[i])
	}
	var over *channel.Event
	if st.Over() && !c.over {
		c.over = true
		over = &channel.Event{Kind: channel.EventGameOver, GameID: c.gameID, Result: st.Result(), Reason: st.Status, At: time.Now()}
	}
	c.mu.Unlock()

	for _, uci := range fresh {
		c.deliver(channel.Event{Kind: channel.EventMove, UCI: uci, At: time.Now()})
	}
	if over != nil {
		obslog.L().Info("remote_game_over", zap.String("status", st.Status), zap.String("result", over.Result))
		c.deliver(*over)
	}
}

func (c *Channel) onState(state StreamState) {
	switch state {
	case StreamDisconnected:
		c.mu.Lock()
		c.down = true
		c.mu.Unlock()
		c.deliver(channel.Event{Kind: channel.EventDisconnected, Err: channel.ErrChannelDisconnected, At: time.Now()})
	case StreamConnected:
		c.mu.Lock()
		was := c.down
		c.down = false
		c.mu.Unlock()
		if was {
			c.deliver(channel.Event{Kind: channel.EventReconnected, At: time.Now()})
		}
	case StreamFailed:
		c.mu.Lock()
		already := c.lost
		c.lost = true
		c.mu.Unlock()
		if !already {
			c.deliver(channel.Event{Kind: channel.EventSessionLost, Err: fmt.Errorf("%w: stream closed", channel.ErrSessionLost), At: time.Now()})
		}
	}
}

func (c *Channel) deliver(ev channel.Event) {
	c.mu.Lock()
	ctx, events := c.ctx, c.events
	c.mu.Unlock()
	if events == nil {
		return
	}
	channel.Deliver(ctx, events, ev)
}

// Submit sends our move; m.Ply places it in the game's move list.
func (c *Channel) Submit(ctx context.Context, m board.ConfirmedMove) error {
	c.mu.Lock()
	id, attached := c.gameID, c.attached
	if attached && m.Ply > 0 {
		c.ours[m.Ply-1] = m.UCI()
	}
	c.mu.Unlock()
	if !attached {
		return channel.ErrNotAttached
	}
	if err := c.client.Move(ctx, id, m.UCI()); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == 400 {
			return fmt.Errorf("%w: submit %s: %v", channel.ErrRefused, m.UCI(), err)
		}
		return fmt.Errorf("%w: submit %s: %v", channel.ErrChannelDisconnected, m.UCI(), err)
	}
	return nil
}

func (c *Channel) Resign(ctx context.Context) error {
	c.mu.Lock()
	id, attached := c.gameID, c.attached
	c.mu.Unlock()
	if !attached {
		return channel.ErrNotAttached
	}
	return c.client.Resign(ctx, id)
}

func (c *Channel) OfferDraw(ctx context.Context) error {
	c.mu.Lock()
	id, attached := c.gameID, c.attached
	c.mu.Unlock()
	if !attached {
		return channel.ErrNotAttached
	}
	return c.client.OfferDraw(ctx, id)
}

func (c *Channel) Close() error {
	c.mu.Lock()
	streams := []*Stream{c.accounts, c.game}
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var errs []error
	for _, s := range streams {
		if s != nil {
			if err := s.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
