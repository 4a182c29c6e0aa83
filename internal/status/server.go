// Package status serves a read-only view of the running game over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/smartchess/internal/game"
	"github.com/park285/smartchess/internal/movelog"
	"github.com/park285/smartchess/internal/obslog"
)

const requestTimeout = 5 * time.Second

var ErrNoPreview = errors.New("preview not configured")

// StateSource reports the loop status.
type StateSource interface {
	Status() game.Status
}

// PNGSource renders the board picture.
type PNGSource interface {
	PNG(ctx context.Context) ([]byte, error)
}

type Server struct {
	state   StateSource
	log     movelog.Log
	preview PNGSource
	srv     *fasthttp.Server
}

// New builds a server. preview may be nil.
func New(state StateSource, log movelog.Log, preview PNGSource) *Server {
	s := &Server{state: state, log: log, preview: preview}
	s.srv = &fasthttp.Server{
		Handler:            s.Handler(),
		Name:               "smartchess",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxRequestBodySize: 1 << 16,
	}
	return s
}

// Handler routes GET requests; anything else is 405.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !ctx.IsGet() && !ctx.IsHead() {
			ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
			return
		}
		switch string(ctx.Path()) {
		case "/health":
			ctx.SetContentType("text/plain; charset=utf-8")
			ctx.SetBodyString("ok")
		case "/state":
			s.writeJSON(ctx, s.state.Status())
		case "/moves":
			s.moves(ctx)
		case "/pgn":
			s.pgn(ctx)
		case "/preview.png":
			s.png(ctx)
		default:
			ctx.Error("not found", fasthttp.StatusNotFound)
		}
	}
}

func (s *Server) entries(ctx *fasthttp.RequestCtx) ([]movelog.Entry, game.Status, bool) {
	st := s.state.Status()
	if st.GameID == "" {
		ctx.Error(movelog.ErrNoCurrentGame.Error(), fasthttp.StatusNotFound)
		return nil, st, false
	}
	c, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	entries, err := s.log.Entries(c, st.GameID)
	if err != nil {
		obslog.L().Warn("status_moves_failed", zap.String("game_id", st.GameID), zap.Error(err))
		ctx.Error("move log unavailable", fasthttp.StatusServiceUnavailable)
		return nil, st, false
	}
	return entries, st, true
}

func (s *Server) moves(ctx *fasthttp.RequestCtx) {
	entries, _, ok := s.entries(ctx)
	if !ok {
		return
	}
	if entries == nil {
		entries = []movelog.Entry{}
	}
	s.writeJSON(ctx, entries)
}

func (s *Server) pgn(ctx *fasthttp.RequestCtx) {
	entries, st, ok := s.entries(ctx)
	if !ok {
		return
	}
	g := movelog.Game{
		ID:      st.GameID,
		Mode:    st.Mode,
		Result:  st.Result,
		Method:  st.Method,
		Entries: entries,
		EndedAt: st.UpdatedAt,
	}
	switch st.LocalSide {
	case "white":
		g.White, g.Black = "board", st.Opponent
	case "black":
		g.White, g.Black = st.Opponent, "board"
	case "both":
		g.White, g.Black = "board", "board"
	}
	ctx.SetContentType("application/x-chess-pgn")
	ctx.SetBodyString(movelog.BuildPGN(g))
}

func (s *Server) png(ctx *fasthttp.RequestCtx) {
	if s.preview == nil {
		ctx.Error(ErrNoPreview.Error(), fasthttp.StatusNotFound)
		return
	}
	c, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	body, err := s.preview.PNG(c)
	if err != nil {
		obslog.L().Warn("status_preview_failed", zap.Error(err))
		ctx.Error("preview unavailable", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("image/png")
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetBody(body)
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.Error(fmt.Sprintf("encode: %v", err), fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// Serve blocks until ln is closed or Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	obslog.L().Info("status_listening", zap.String("addr", ln.Addr().String()))
	return s.srv.Serve(ln)
}

func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}
