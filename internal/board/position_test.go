package board

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustFEN(t *testing.T, fen string) Position {
	t.Helper()
	p, err := ParseFEN(fen)
	if err != nil {
		t.Fatalf("ParseFEN(%q): %v", fen, err)
	}
	return p
}

func mustUCI(t *testing.T, pos Position, uci string) CandidateMove {
	t.Helper()
	m, err := MoveFromUCI(pos, uci)
	if err != nil {
		t.Fatalf("MoveFromUCI(%q): %v", uci, err)
	}
	return m
}

func TestFENRoundTrip(t *testing.T) {
	fens := []string{
		StartFEN,
		"r3k2r/8/8/3pP3/8/8/8/R3K2R w KQkq d6 0 12",
		"8/P7/8/8/8/8/k6K/8 b - - 3 40",
	}
	for _, fen := range fens {
		if got := mustFEN(t, fen).FEN(); got != fen {
			t.Fatalf("round trip:\nwant %s\n got %s", fen, got)
		}
	}
}

func TestParseFENRejectsGarbage(t *testing.T) {
	for _, fen := range []string{"", "8/8/8 w - -", "rnbqkbnr/pppppppp/9/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", StartFEN[:len(StartFEN)-10] + "x KQkq - 0 1",
		"4k3/8/8/8/8/8/8/4K3 w - e4 0 1",
		"4k3/8/8/8/8/8/8/R3K2R w KK - 0 1",
	} {
		if _, err := ParseFEN(fen); !errors.Is(err, ErrBadFEN) {
			t.Fatalf("ParseFEN(%q) err=%v, want ErrBadFEN", fen, err)
		}
	}
}

func TestApplyPawnDoublePush(t *testing.T) {
	start := StartingPosition()
	next, err := start.Apply(mustUCI(t, start, "e2e4"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	if diff := cmp.Diff(want, next.FEN()); diff != "" {
		t.Fatalf("fen mismatch (-want +got):\n%s", diff)
	}
	if start.At(MustSquare("e2")).Kind != Pawn {
		t.Fatalf("Apply mutated the receiver")
	}
}

func TestApplySpecialMoves(t *testing.T) {
	cases := []struct {
		name string
		fen  string
		uci  string
		tag  MoveTag
		want string
	}{
		{"castle kingside", "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1", "e1g1", TagCastleKingside, "r3k2r/8/8/8/8/8/8/R4RK1 b kq - 1 1"},
		{"castle queenside black", "r3k2r/8/8/8/8/8/8/R3K2R b KQkq - 0 1", "e8c8", TagCastleQueenside, "2kr3r/8/8/8/8/8/8/R3K2R w KQ - 1 2"},
		{"en passant", "4k3/8/8/3pP3/8/8/8/4K3 w - d6 0 5", "e5d6", TagEnPassant, "4k3/8/3P4/8/8/8/8/4K3 b - - 0 5"},
		{"promotion", "4k3/P7/8/8/8/8/8/4K3 w - - 0 1", "a7a8q", TagPromotion, "Q3k3/8/8/8/8/8/8/4K3 b - - 0 1"},
		{"capture promotion", "1r2k3/P7/8/8/8/8/8/4K3 w - - 0 1", "a7b8n", TagPromotion, "1N2k3/8/8/8/8/8/8/4K3 b - - 0 1"},
		{"rook capture clears right", "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1", "a1a8", TagNone, "R3k2r/8/8/8/8/8/8/4K2R b Kk - 0 1"},
	}
	for _, tc := range cases {
		pos := mustFEN(t, tc.fen)
		m := mustUCI(t, pos, tc.uci)
		if m.Tag != tc.tag {
			t.Fatalf("%s: tag=%s want %s", tc.name, m.Tag, tc.tag)
		}
		next, err := pos.Apply(m)
		if err != nil {
			t.Fatalf("%s: Apply: %v", tc.name, err)
		}
		if got := next.FEN(); got != tc.want {
			t.Fatalf("%s:\nwant %s\n got %s", tc.name, tc.want, got)
		}
	}
}

func TestApplyRejectsBrokenPreconditions(t *testing.T) {
	start := StartingPosition()
	bad := []CandidateMove{
		{From: MustSquare("e7"), To: MustSquare("e5"), Captured: NoSquare},                         // wrong side
		{From: MustSquare("e3"), To: MustSquare("e4"), Captured: NoSquare},                         // empty from
		{From: MustSquare("d1"), To: MustSquare("d2"), Captured: NoSquare},                         // own piece on target
		{From: MustSquare("e1"), To: MustSquare("g1"), Captured: NoSquare, Tag: TagCastleKingside}, // blocked
		{From: MustSquare("e2"), To: MustSquare("d3"), Captured: NoSquare},                         // pawn diagonal to empty
	}
	for _, m := range bad {
		if _, err := start.Apply(m); err == nil {
			t.Fatalf("Apply(%s) succeeded, want error", m)
		}
	}

	promo := mustFEN(t, "4k3/P7/8/8/8/8/8/4K3 w - - 0 1")
	unset := mustUCI(t, promo, "a7a8")
	if !unset.NeedsPromotion() {
		t.Fatalf("a7a8 should need a promotion kind: %+v", unset)
	}
	if _, err := promo.Apply(unset); err == nil {
		t.Fatalf("promotion without kind applied")
	}
}

func TestOccupancyMatchesPosition(t *testing.T) {
	occ := StartingPosition().Occupancy()
	if occ.Count() != 32 {
		t.Fatalf("count=%d", occ.Count())
	}
	if occ.Hex() != "ffff00000000ffff" {
		t.Fatalf("hex=%s", occ.Hex())
	}
	back, err := ParseOccupancyHex(occ.Hex())
	if err != nil || back != occ {
		t.Fatalf("ParseOccupancyHex=%v,%v", back, err)
	}
	if occ.Has(MustSquare("e4")) || !occ.With(MustSquare("e4"), true).Has(MustSquare("e4")) {
		t.Fatalf("With/Has mismatch")
	}
}

func TestCheckedKing(t *testing.T) {
	if got := StartingPosition().CheckedKing(); got != NoSquare {
		t.Fatalf("start position in check on %s", got)
	}
	cases := map[string]string{
		"4k3/8/8/8/8/8/8/4K2r w - - 0 1":    "e1",
		"4k3/8/8/8/1b6/8/8/4K3 w - - 0 1":   "e1",
		"4k3/3P4/8/8/8/8/8/4K3 b - - 0 1":   "e8",
		"4k3/8/5N2/8/8/8/8/4K3 b - - 0 1":   "e8",
		"4k3/4p3/8/8/8/8/8/4R1K1 b - - 0 1": "-",
		"1k6/8/8/8/1b6/8/8/1R2K3 w - - 0 1": "e1",
	}
	for fen, want := range cases {
		if got := mustFEN(t, fen).CheckedKing().String(); got != want {
			t.Fatalf("%s: checked king %s, want %s", fen, got, want)
		}
	}
}
