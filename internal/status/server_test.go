package status

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/game"
	"github.com/park285/smartchess/internal/movelog"
	"github.com/park285/smartchess/internal/preview"
)

type fixedState struct{ st game.Status }

func (f fixedState) Status() game.Status { return f.st }

func serve(t *testing.T, s *Server) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
}

func get(t *testing.T, c *fasthttp.Client, path string) (int, []byte, string) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI("http://status.test" + path)
	if err := c.DoTimeout(req, resp, 2*time.Second); err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp.StatusCode(), append([]byte(nil), resp.Body()...), string(resp.Header.ContentType())
}

func sampleLog(t *testing.T, gameID string) *movelog.Memory {
	t.Helper()
	log := movelog.NewMemory()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []movelog.Entry{
		{GameID: gameID, Kind: movelog.KindStart, At: at},
		{GameID: gameID, Ply: 1, Kind: movelog.KindMove, UCI: "e2e4", SAN: "e4", Side: "white", At: at},
		{GameID: gameID, Ply: 2, Kind: movelog.KindMove, UCI: "e7e5", SAN: "e5", Side: "black", At: at},
	}
	for _, e := range entries {
		if err := log.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return log
}

func TestHealth(t *testing.T) {
	c := serve(t, New(fixedState{}, movelog.NewMemory(), nil))
	code, body, _ := get(t, c, "/health")
	if code != fasthttp.StatusOK || string(body) != "ok" {
		t.Fatalf("health = %d %q", code, body)
	}
	if code, _, _ := get(t, c, "/nope"); code != fasthttp.StatusNotFound {
		t.Fatalf("unknown path = %d, want 404", code)
	}
}

func TestStateIsJSON(t *testing.T) {
	want := game.Status{
		GameID:    "g1",
		Mode:      "computer",
		Phase:     "playing",
		FEN:       board.StartingPosition().FEN(),
		Turn:      "white",
		LocalSide: "white",
		Opponent:  "engine",
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	c := serve(t, New(fixedState{want}, movelog.NewMemory(), nil))
	code, body, ct := get(t, c, "/state")
	if code != fasthttp.StatusOK || ct != "application/json" {
		t.Fatalf("state = %d %q", code, ct)
	}
	var got game.Status
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestMovesAndPGNOfCurrentGame(t *testing.T) {
	st := game.Status{GameID: "g7", Mode: "computer", LocalSide: "black", Opponent: "engine"}
	c := serve(t, New(fixedState{st}, sampleLog(t, "g7"), nil))

	code, body, _ := get(t, c, "/moves")
	if code != fasthttp.StatusOK {
		t.Fatalf("moves = %d", code)
	}
	var entries []movelog.Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff([]string{"e4", "e5"}, movelog.SANs(entries)); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}

	code, body, _ = get(t, c, "/pgn")
	if code != fasthttp.StatusOK {
		t.Fatalf("pgn = %d", code)
	}
	pgn := string(body)
	for _, want := range []string{`[White "engine"]`, `[Black "board"]`, "1. e4 e5", "*"} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
}

func TestMovesWithoutGame(t *testing.T) {
	c := serve(t, New(fixedState{}, movelog.NewMemory(), nil))
	if code, _, _ := get(t, c, "/moves"); code != fasthttp.StatusNotFound {
		t.Fatalf("moves without game = %d, want 404", code)
	}
}

func TestPreviewPNG(t *testing.T) {
	r := preview.NewRenderer(board.StartingPosition(), false)
	c := serve(t, New(fixedState{}, movelog.NewMemory(), r))
	code, body, ct := get(t, c, "/preview.png")
	if code != fasthttp.StatusOK || ct != "image/png" {
		t.Fatalf("preview = %d %q", code, ct)
	}
	img, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != preview.Size {
		t.Fatalf("width = %d, want %d", img.Bounds().Dx(), preview.Size)
	}

	c = serve(t, New(fixedState{}, movelog.NewMemory(), nil))
	if code, _, _ := get(t, c, "/preview.png"); code != fasthttp.StatusNotFound {
		t.Fatalf("preview without renderer = %d, want 404", code)
	}
}

func TestRejectsWrites(t *testing.T) {
	c := serve(t, New(fixedState{}, movelog.NewMemory(), nil))
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI("http://status.test/state")
	req.Header.SetMethod(fasthttp.MethodPost)
	if err := c.DoTimeout(req, resp, 2*time.Second); err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode() != fasthttp.StatusMethodNotAllowed {
		t.Fatalf("POST = %d, want 405", resp.StatusCode())
	}
}
