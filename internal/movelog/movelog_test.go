package movelog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/park285/smartchess/internal/board"
)

var at = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func sampleEntries(gameID string) []Entry {
	return []Entry{
		{GameID: gameID, Kind: KindStart, At: at},
		{GameID: gameID, Ply: 1, Kind: KindMove, UCI: "e2e4", SAN: "e4", Side: "white", At: at},
		{GameID: gameID, Ply: 2, Kind: KindMove, UCI: "e7e5", SAN: "e5", Side: "black", At: at},
		{GameID: gameID, Ply: 3, Kind: KindMove, UCI: "g1f3", SAN: "Nf3", Side: "white", At: at},
		{GameID: gameID, Ply: 3, Kind: KindTakeback, At: at},
		{GameID: gameID, Ply: 3, Kind: KindMove, UCI: "f1c4", SAN: "Bc4", Side: "white", At: at},
	}
}

// exerciseLog checks the behaviour every Log implementation shares.
func exerciseLog(t *testing.T, l Log) {
	t.Helper()
	ctx := context.Background()
	want := sampleEntries("g1")
	for _, e := range want {
		if err := l.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := l.Append(ctx, Entry{GameID: "other", Kind: KindStart, At: at}); err != nil {
		t.Fatalf("Append other: %v", err)
	}
	got, err := l.Entries(ctx, "g1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	if empty, err := l.Entries(ctx, "missing"); err != nil || len(empty) != 0 {
		t.Fatalf("missing game: %v %v", empty, err)
	}

	p, ok := l.(Pointer)
	if !ok {
		return
	}
	if _, err := p.Current(ctx); !errors.Is(err, ErrNoCurrentGame) {
		t.Fatalf("Current before set: %v", err)
	}
	if err := p.SetCurrent(ctx, "g1"); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	if id, err := p.Current(ctx); err != nil || id != "g1" {
		t.Fatalf("Current=%q,%v", id, err)
	}
}

func TestMemory(t *testing.T) { exerciseLog(t, NewMemory()) }

func TestRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	r, err := NewRedis(fmt.Sprintf("redis://%s/0", mr.Addr()), time.Hour)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	exerciseLog(t, r)
	if ttl := mr.TTL(gameKey("g1")); ttl != time.Hour {
		t.Fatalf("ttl=%v", ttl)
	}
}

func TestRedisRejectsBadURL(t *testing.T) {
	if _, err := NewRedis("", 0); err == nil {
		t.Fatalf("empty url accepted")
	}
	if _, err := NewRedis("http://localhost:6379", 0); err == nil {
		t.Fatalf("http scheme accepted")
	}
}

func TestJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "journal.db")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	exerciseLog(t, j)
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Entries(context.Background(), "g1")
	if err != nil || len(got) != len(sampleEntries("g1")) {
		t.Fatalf("entries after reopen: %d %v", len(got), err)
	}
}

func TestMulti(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	exerciseLog(t, Multi{a, b})
	got, _ := b.Entries(context.Background(), "g1")
	if len(got) != len(sampleEntries("g1")) {
		t.Fatalf("second log got %d entries", len(got))
	}
}

func TestSANsAppliesTakebacks(t *testing.T) {
	got := SANs(sampleEntries("g"))
	if diff := cmp.Diff([]string{"e4", "e5", "Bc4"}, got); diff != "" {
		t.Fatalf("SANs (-want +got):\n%s", diff)
	}
}

func TestBuildPGN(t *testing.T) {
	pgn := BuildPGN(Game{ID: "g", White: `A "the" player`, Result: "1-0", Method: "Checkmate", Entries: sampleEntries("g"), EndedAt: at})
	for _, want := range []string{
		`[Date "2026.03.04"]`,
		`[White "A 'the' player"]`,
		`[Black "Black"]`,
		`[Termination "checkmate"]`,
		"1. e4 e5 2. Bc4 1-0",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
}

func TestBuildPGNFromSetUpPosition(t *testing.T) {
	const fen = "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R b KQkq - 2 3"
	pgn := BuildPGN(Game{ID: "p", Result: "0-1", EndedAt: at, Entries: []Entry{
		{GameID: "p", Kind: KindStart, FEN: fen, At: at},
		{GameID: "p", Ply: 1, Kind: KindMove, SAN: "Nf6", At: at},
		{GameID: "p", Ply: 2, Kind: KindMove, SAN: "Bc4", At: at},
		{GameID: "p", Ply: 3, Kind: KindMove, SAN: "Nxe4", At: at},
	}})
	for _, want := range []string{
		`[SetUp "1"]`,
		`[FEN "` + fen + `"]`,
		"3... Nf6 4. Bc4 Nxe4 0-1",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
	if strings.Contains(BuildPGN(Game{Entries: []Entry{{Kind: KindStart, FEN: board.StartFEN}}}), "SetUp") {
		t.Fatalf("standard start tagged as set up")
	}
}

func TestMoveEntryTagsSpecialMoves(t *testing.T) {
	pos, err := board.ParseFEN("8/4P3/8/8/8/8/k7/4K3 w - - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}
	m, err := board.MoveFromUCI(pos, "e7e8q")
	if err != nil {
		t.Fatalf("MoveFromUCI: %v", err)
	}
	after, err := pos.Apply(m)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	cm := board.Confirm(m, board.White, "e8=Q", at)
	cm.Ply = 1
	e := MoveEntry("g", cm, SourceBoard, after)
	if e.Special != "promotion" || e.UCI != "e7e8q" || e.FEN != after.FEN() {
		t.Fatalf("entry %+v", e)
	}
}
