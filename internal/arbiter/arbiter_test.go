package arbiter

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/inference"
	"github.com/park285/smartchess/internal/rules"
)

const (
	debounce = 50 * time.Millisecond
	window   = 500 * time.Millisecond
	timeout  = 5 * time.Second
)

// driver moves pieces on a simulated sensor grid, holding every change past
// the debounce interval.
type driver struct {
	t   *testing.T
	a   *Arbiter
	pos board.Position
	occ board.Occupancy
	now time.Time
}

func newDriver(t *testing.T, fen string) *driver {
	t.Helper()
	pos, err := board.ParseFEN(fen)
	if err != nil {
		t.Fatalf("ParseFEN(%q): %v", fen, err)
	}
	cfg := Config{Debounce: debounce, SettleWindow: window, ConfirmTimeout: timeout}
	return &driver{
		t:   t,
		a:   New(rules.NewStandard(nil), cfg, pos.Occupancy()),
		pos: pos,
		occ: pos.Occupancy(),
		now: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
	}
}

func (d *driver) lift(name string) Decision {
	d.occ = d.occ.With(board.MustSquare(name), false)
	return d.feed()
}

func (d *driver) place(name string) Decision {
	d.occ = d.occ.With(board.MustSquare(name), true)
	return d.feed()
}

func (d *driver) feed() Decision {
	if dec := d.a.Observe(d.pos, board.Snapshot{Occupancy: d.occ, At: d.now}); dec.Kind != None {
		return dec
	}
	d.now = d.now.Add(100 * time.Millisecond)
	return d.a.Tick(d.pos, d.now)
}

func (d *driver) settle() Decision {
	d.now = d.now.Add(window)
	return d.a.Tick(d.pos, d.now)
}

func (d *driver) quiet(steps ...Decision) {
	d.t.Helper()
	for i, dec := range steps {
		if dec.Kind != None {
			d.t.Fatalf("step %d: unexpected %s decision (err=%v)", i, dec.Kind, dec.Err)
		}
	}
}

func TestSimplePawnPushCommits(t *testing.T) {
	d := newDriver(t, board.StartFEN)
	d.quiet(d.lift("e2"))
	if d.a.State() != Collecting || !d.a.Busy() {
		t.Fatalf("state=%s busy=%v, want collecting", d.a.State(), d.a.Busy())
	}
	d.quiet(d.place("e4"))
	dec := d.settle()
	if dec.Kind != Commit {
		t.Fatalf("decision=%s err=%v, want commit", dec.Kind, dec.Err)
	}
	want := board.CandidateMove{From: board.MustSquare("e2"), To: board.MustSquare("e4"), Captured: board.NoSquare}
	if diff := cmp.Diff(want, dec.Move); diff != "" {
		t.Fatalf("move mismatch (-want +got):\n%s", diff)
	}
	if d.a.State() != Committing {
		t.Fatalf("state=%s, want committing", d.a.State())
	}
	d.a.Committed(d.occ)
	if d.a.State() != Idle || d.a.Busy() {
		t.Fatalf("state=%s after commit", d.a.State())
	}
}

func TestKingsideCastleCommitsWithoutChoice(t *testing.T) {
	d := newDriver(t, "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1")
	d.quiet(d.lift("e1"), d.place("g1"), d.settle())
	if d.a.State() != Collecting {
		t.Fatalf("king-only footprint left collecting: %s", d.a.State())
	}
	d.quiet(d.lift("h1"), d.place("f1"))
	dec := d.settle()
	if dec.Kind != Commit {
		t.Fatalf("decision=%s err=%v, want commit", dec.Kind, dec.Err)
	}
	if dec.Move.Tag != board.TagCastleKingside || dec.Move.UCI() != "e1g1" {
		t.Fatalf("move=%s, want kingside castle", dec.Move)
	}
}

func TestPromotionWaitsForSelection(t *testing.T) {
	d := newDriver(t, "8/4P3/8/8/8/8/k7/4K3 w - - 0 1")
	d.quiet(d.lift("e7"), d.place("e8"))
	dec := d.settle()
	if dec.Kind != Prompt {
		t.Fatalf("decision=%s, want prompt", dec.Kind)
	}
	p := d.a.Prompt()
	if p.Kind != PromotionPrompt || p.Move.UCI() != "e7e8" {
		t.Fatalf("prompt=%+v", p)
	}
	for i := 0; i < 5; i++ {
		if dec := d.settle(); dec.Kind != None {
			t.Fatalf("tick %d committed without selection: %s", i, dec.Kind)
		}
	}
	if got := d.a.Select(d.pos, Selection{Index: 9}, d.now); got.Kind != None {
		t.Fatalf("out-of-range selection accepted: %s", got.Kind)
	}
	dec = d.a.Select(d.pos, Selection{Promotion: board.Queen}, d.now)
	if dec.Kind != Commit {
		t.Fatalf("decision=%s err=%v, want commit", dec.Kind, dec.Err)
	}
	if dec.Move.UCI() != "e7e8q" || dec.Move.Tag != board.TagPromotion {
		t.Fatalf("move=%s", dec.Move)
	}
}

func TestRevertBeforeSettlingIsSilent(t *testing.T) {
	d := newDriver(t, board.StartFEN)
	d.quiet(d.lift("g1"))
	dec := d.place("g1")
	if dec.Kind != Reverted {
		t.Fatalf("decision=%s, want reverted", dec.Kind)
	}
	if d.a.State() != Idle {
		t.Fatalf("state=%s", d.a.State())
	}
	d.quiet(d.settle(), d.settle())
}

func TestRejections(t *testing.T) {
	t.Run("illegal", func(t *testing.T) {
		d := newDriver(t, "4k3/8/8/8/8/8/4r3/4K3 w - - 0 1")
		d.quiet(d.lift("e1"), d.place("f2"))
		dec := d.settle()
		if dec.Kind != Reject || !errors.Is(dec.Err, ErrIllegalMove) {
			t.Fatalf("decision=%s err=%v", dec.Kind, dec.Err)
		}
		if d.a.State() != Idle {
			t.Fatalf("state=%s", d.a.State())
		}
		if d.a.Displaced() == 0 {
			t.Fatalf("displaced squares not reported")
		}
	})
	t.Run("not your turn", func(t *testing.T) {
		d := newDriver(t, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1")
		d.a.SetLocal(board.White)
		d.quiet(d.lift("e7"), d.place("e5"))
		dec := d.settle()
		if !errors.Is(dec.Err, ErrNotYourTurn) || !errors.Is(dec.Err, ErrIllegalMove) {
			t.Fatalf("err=%v", dec.Err)
		}
	})
	t.Run("unrecognized", func(t *testing.T) {
		d := newDriver(t, board.StartFEN)
		d.quiet(d.place("e4"))
		dec := d.settle()
		if !errors.Is(dec.Err, inference.ErrUnrecognizedPhysicalChange) {
			t.Fatalf("err=%v", dec.Err)
		}
	})
	t.Run("choice timeout", func(t *testing.T) {
		d := newDriver(t, "8/4P3/8/8/8/8/k7/4K3 w - - 0 1")
		d.quiet(d.lift("e7"), d.place("e8"))
		if dec := d.settle(); dec.Kind != Prompt {
			t.Fatalf("decision=%s", dec.Kind)
		}
		d.now = d.now.Add(timeout)
		dec := d.a.Tick(d.pos, d.now)
		if !errors.Is(dec.Err, ErrConfirmationTimeout) {
			t.Fatalf("err=%v", dec.Err)
		}
		if got := d.a.Select(d.pos, Selection{Promotion: board.Queen}, d.now); got.Kind != None {
			t.Fatalf("selection after timeout: %s", got.Kind)
		}
	})
	t.Run("pieces returned during choice", func(t *testing.T) {
		d := newDriver(t, "8/4P3/8/8/8/8/k7/4K3 w - - 0 1")
		d.quiet(d.lift("e7"), d.place("e8"))
		if dec := d.settle(); dec.Kind != Prompt {
			t.Fatalf("decision=%s", dec.Kind)
		}
		d.quiet(d.lift("e8"), d.place("e7"))
		dec := d.settle()
		if !errors.Is(dec.Err, ErrAbandoned) {
			t.Fatalf("decision=%s err=%v", dec.Kind, dec.Err)
		}
	})
}

func TestCollectingTimesOutUnderChurn(t *testing.T) {
	d := newDriver(t, board.StartFEN)
	d.quiet(d.lift("e2"))
	var dec Decision
	for i := 0; i < 100 && dec.Kind == None; i++ {
		if i%2 == 0 {
			dec = d.place("e3")
		} else {
			dec = d.lift("e3")
		}
	}
	if !errors.Is(dec.Err, ErrConfirmationTimeout) {
		t.Fatalf("decision=%s err=%v", dec.Kind, dec.Err)
	}
}

func TestSeveralLegalReadingsNeedChoice(t *testing.T) {
	d := newDriver(t, "3k4/3r4/8/8/b7/8/8/3QK3 w - - 0 1")
	d.quiet(d.lift("d1"), d.lift("a4"), d.lift("d7"), d.place("a4"), d.place("d7"))
	dec := d.settle()
	if dec.Kind != Prompt {
		t.Fatalf("decision=%s err=%v", dec.Kind, dec.Err)
	}
	var got []string
	for _, c := range d.a.Prompt().Choices {
		got = append(got, c.UCI())
	}
	if diff := cmp.Diff([]string{"d1a4", "d1d7"}, got); diff != "" {
		t.Fatalf("choices (-want +got):\n%s", diff)
	}
	dec = d.a.Select(d.pos, Selection{Index: 2}, d.now)
	if dec.Kind != Commit || dec.Move.UCI() != "d1d7" {
		t.Fatalf("decision=%s move=%s", dec.Kind, dec.Move)
	}
}

func TestAwaitingMirror(t *testing.T) {
	d := newDriver(t, board.StartFEN)
	want := d.occ.With(board.MustSquare("e2"), false).With(board.MustSquare("e4"), true)
	d.quiet(d.a.Expect(want, d.now))
	if d.a.Busy() {
		t.Fatalf("awaiting mirror must not hold back channel moves")
	}
	d.quiet(d.lift("e2"), d.settle())
	d.quiet(d.place("e5"))
	if dec := d.settle(); dec.Kind != Mismatch {
		t.Fatalf("decision=%s, want mismatch", dec.Kind)
	}
	if _, waiting := d.a.Expected(); !waiting {
		t.Fatalf("mismatch left the mirror state")
	}
	d.quiet(d.lift("e5"), d.place("e4"))
	if dec := d.settle(); dec.Kind != Mirrored {
		t.Fatalf("decision=%s, want mirrored", dec.Kind)
	}
	if d.a.State() != Idle || d.a.Displaced() != 0 {
		t.Fatalf("state=%s displaced=%x", d.a.State(), d.a.Displaced())
	}
}

func TestExpectAlreadyMatching(t *testing.T) {
	d := newDriver(t, board.StartFEN)
	if dec := d.a.Expect(d.occ, d.now); dec.Kind != Mirrored {
		t.Fatalf("decision=%s", dec.Kind)
	}
}
