// Package arbiter turns settled physical actions into committed moves,
// routing ambiguous ones through an explicit confirmation step.
package arbiter

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/inference"
	"github.com/park285/smartchess/internal/obslog"
	"github.com/park285/smartchess/internal/rules"
)

var (
	ErrIllegalMove         = errors.New("illegal move")
	ErrNotYourTurn         = fmt.Errorf("%w: side to move is not played on this board", ErrIllegalMove)
	ErrConfirmationTimeout = errors.New("confirmation timed out")
	ErrAbandoned           = errors.New("pieces returned during confirmation")
)

type State uint8

const (
	Idle State = iota
	Collecting
	Classifying
	SingleCandidate
	NeedsChoice
	Committing
	Rejected
	AwaitingMirror
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Collecting:
		return "collecting"
	case Classifying:
		return "classifying"
	case SingleCandidate:
		return "single_candidate"
	case NeedsChoice:
		return "needs_choice"
	case Committing:
		return "committing"
	case Rejected:
		return "rejected"
	case AwaitingMirror:
		return "awaiting_mirror"
	}
	return "unknown"
}

type Kind uint8

const (
	None Kind = iota
	// Commit carries a fully specified legal move. The caller must follow up
	// with Committed or Reset.
	Commit
	Reject
	// Prompt asks the player to choose; see Arbiter.Prompt.
	Prompt
	// Reverted reports an action undone before it settled. It is silent.
	Reverted
	// Mirrored reports that the board now matches the expected occupancy.
	Mirrored
	// Mismatch reports a settled board that is neither the expected nor the previous one.
	Mismatch
)

func (k Kind) String() string {
	switch k {
	case Commit:
		return "commit"
	case Reject:
		return "reject"
	case Prompt:
		return "prompt"
	case Reverted:
		return "reverted"
	case Mirrored:
		return "mirrored"
	case Mismatch:
		return "mismatch"
	}
	return "none"
}

type Decision struct {
	Kind   Kind
	Move   board.CandidateMove
	Deltas []board.SquareDelta
	Err    error
}

type PromptKind uint8

const (
	NoPrompt PromptKind = iota
	PromotionPrompt
	ChoicePrompt
)

// PromptView is what the player is being asked.
type PromptView struct {
	Kind PromptKind
	// Move is the promotion awaiting a piece kind.
	Move board.CandidateMove
	// Choices lists the legal readings of the action, numbered from 1.
	Choices []board.CandidateMove
	Since   time.Time
}

// Selection is confirmation input. Index is 1-based; in a promotion prompt it
// indexes board.PromotionKinds.
type Selection struct {
	Promotion board.PieceKind
	Index     int
}

type Config struct {
	Debounce       time.Duration
	SettleWindow   time.Duration
	ConfirmTimeout time.Duration
}

// Arbiter is not safe for concurrent use; the game loop owns it.
type Arbiter struct {
	oracle  rules.Oracle
	cfg     Config
	settler *inference.Settler
	local   [2]bool

	state    State
	started  time.Time
	prompt   PromptView
	promptAt board.Occupancy
	expected board.Occupancy
}

func New(oracle rules.Oracle, cfg Config, initial board.Occupancy) *Arbiter {
	a := &Arbiter{
		oracle:  oracle,
		cfg:     cfg,
		settler: inference.NewSettler(cfg.Debounce, cfg.SettleWindow),
		local:   [2]bool{true, true},
	}
	a.settler.Rebase(initial)
	return a
}

// SetLocal sets the sides whose moves are made on this board.
func (a *Arbiter) SetLocal(sides ...board.Side) {
	a.local = [2]bool{}
	for _, s := range sides {
		a.local[s] = true
	}
}

func (a *Arbiter) IsLocal(s board.Side) bool { return a.local[s] }

func (a *Arbiter) State() State { return a.state }

// Busy reports an unresolved local action.
func (a *Arbiter) Busy() bool {
	switch a.state {
	case Collecting, Classifying, SingleCandidate, NeedsChoice, Committing:
		return true
	}
	return false
}

func (a *Arbiter) Prompt() PromptView { return a.prompt }

// Expected is the occupancy the player is asked to reproduce while awaiting a mirror.
func (a *Arbiter) Expected() (board.Occupancy, bool) {
	return a.expected, a.state == AwaitingMirror
}

// Physical is the settled sensor reading.
func (a *Arbiter) Physical() board.Occupancy { return a.settler.Stable() }

// Displaced lists squares whose occupancy differs from the last accepted board.
func (a *Arbiter) Displaced() board.Occupancy {
	return a.settler.Stable() ^ a.settler.Baseline()
}

// Observe feeds one sensor reading.
func (a *Arbiter) Observe(pos board.Position, snap board.Snapshot) Decision {
	if a.state == Committing {
		return Decision{}
	}
	a.settler.Observe(snap)
	return a.evaluate(pos, snap.At)
}

// Tick advances debounce and timeouts without a new reading.
func (a *Arbiter) Tick(pos board.Position, now time.Time) Decision {
	if a.state == Committing {
		return Decision{}
	}
	a.settler.Advance(now)
	return a.evaluate(pos, now)
}

func (a *Arbiter) evaluate(pos board.Position, now time.Time) Decision {
	switch a.state {
	case Idle:
		if !a.settler.Active() {
			return Decision{}
		}
		a.started = a.settler.LastChange()
		a.step(Collecting)
		return a.collect(pos, now)
	case Collecting:
		return a.collect(pos, now)
	case NeedsChoice:
		return a.waitChoice(pos, now)
	case AwaitingMirror:
		return a.waitMirror(now)
	}
	return Decision{}
}

func (a *Arbiter) collect(pos board.Position, now time.Time) Decision {
	if a.settler.Reverted() {
		a.settler.Rebase(a.settler.Baseline())
		a.step(Idle)
		return Decision{Kind: Reverted}
	}
	if a.timedOut(a.started, now) {
		return a.reject(ErrConfirmationTimeout, nil)
	}
	if !a.settler.Settled(now) {
		return Decision{}
	}
	return a.classify(pos, now)
}

func (a *Arbiter) classify(pos board.Position, now time.Time) Decision {
	a.step(Classifying)
	deltas := a.settler.Deltas(pos)
	if inHand(deltas) {
		a.step(Collecting)
		return Decision{}
	}
	if !a.local[pos.Turn] {
		return a.reject(fmt.Errorf("%w: %s to move", ErrNotYourTurn, pos.Turn), deltas)
	}
	candidates, err := inference.Infer(pos, deltas)
	if err != nil {
		return a.reject(err, deltas)
	}

	var complete []board.CandidateMove
	for _, c := range candidates {
		if inference.Complete(c, pos.Turn, deltas) {
			complete = append(complete, c)
		}
	}
	if len(complete) == 0 {
		a.step(Collecting)
		return Decision{}
	}

	var legal []board.CandidateMove
	for _, c := range complete {
		if a.oracle.IsLegal(pos, c) {
			legal = append(legal, c)
		}
	}
	switch {
	case len(legal) == 0:
		return a.reject(fmt.Errorf("%w: %s", ErrIllegalMove, complete[0]), deltas)
	case len(legal) > 1:
		return a.ask(PromptView{Kind: ChoicePrompt, Choices: legal, Since: now}, deltas)
	}
	a.step(SingleCandidate)
	if legal[0].NeedsPromotion() {
		return a.ask(PromptView{Kind: PromotionPrompt, Move: legal[0], Since: now}, deltas)
	}
	return a.commit(legal[0], deltas)
}

func (a *Arbiter) waitChoice(pos board.Position, now time.Time) Decision {
	if a.timedOut(a.prompt.Since, now) {
		return a.reject(ErrConfirmationTimeout, nil)
	}
	if !a.settler.Settled(now) || a.settler.Stable() == a.promptAt {
		return Decision{}
	}
	if a.settler.Stable() == a.settler.Baseline() {
		return a.reject(ErrAbandoned, nil)
	}
	a.prompt = PromptView{}
	return a.classify(pos, now)
}

func (a *Arbiter) waitMirror(now time.Time) Decision {
	if a.settler.Stable() == a.expected && a.settler.Settled(now) {
		return a.mirrored()
	}
	if !a.settler.Settled(now) {
		return Decision{}
	}
	stable := a.settler.Stable()
	if stable&^a.expected&^a.settler.Baseline() == 0 {
		// only lifts so far, still on the way
		return Decision{}
	}
	a.settler.Hold()
	obslog.L().Info("mirror_mismatch",
		zap.String("expected", a.expected.Hex()),
		zap.String("board", a.settler.Stable().Hex()),
	)
	return Decision{Kind: Mismatch}
}

// Select applies confirmation input while a choice is pending.
func (a *Arbiter) Select(pos board.Position, sel Selection, now time.Time) Decision {
	if a.state != NeedsChoice {
		return Decision{}
	}
	if a.timedOut(a.prompt.Since, now) {
		return a.reject(ErrConfirmationTimeout, nil)
	}
	switch a.prompt.Kind {
	case ChoicePrompt:
		if sel.Index < 1 || sel.Index > len(a.prompt.Choices) {
			return Decision{}
		}
		picked := a.prompt.Choices[sel.Index-1]
		if picked.NeedsPromotion() {
			a.prompt = PromptView{Kind: PromotionPrompt, Move: picked, Since: now}
			return Decision{Kind: Prompt}
		}
		return a.commit(picked, nil)
	case PromotionPrompt:
		kind := sel.Promotion
		if kind == board.NoKind && sel.Index >= 1 && sel.Index <= len(board.PromotionKinds) {
			kind = board.PromotionKinds[sel.Index-1]
		}
		if kind == board.NoKind {
			return Decision{}
		}
		m := a.prompt.Move.WithPromotion(kind)
		if !a.oracle.IsLegal(pos, m) {
			return a.reject(fmt.Errorf("%w: %s", ErrIllegalMove, m), nil)
		}
		return a.commit(m, nil)
	}
	return Decision{}
}

// Committed moves the baseline to the board after a committed move.
func (a *Arbiter) Committed(occ board.Occupancy) {
	a.settler.Rebase(occ)
	a.prompt = PromptView{}
	a.step(Idle)
}

// Expect waits for the player to reproduce occ, after a move that was made
// elsewhere or a takeback.
func (a *Arbiter) Expect(occ board.Occupancy, now time.Time) Decision {
	a.prompt = PromptView{}
	a.expected = occ
	a.settler.Hold()
	a.step(AwaitingMirror)
	if a.settler.Stable() == occ {
		return a.mirrored()
	}
	return Decision{}
}

// Reset discards any action and trusts occ as the physical board.
func (a *Arbiter) Reset(occ board.Occupancy) {
	a.settler.Rebase(occ)
	a.prompt = PromptView{}
	a.expected = 0
	a.step(Idle)
}

func (a *Arbiter) mirrored() Decision {
	a.settler.Rebase(a.expected)
	a.step(Idle)
	return Decision{Kind: Mirrored}
}

func (a *Arbiter) ask(p PromptView, deltas []board.SquareDelta) Decision {
	a.prompt = p
	a.promptAt = a.settler.Stable()
	a.step(NeedsChoice)
	obslog.L().Info("move_needs_choice",
		zap.Int("choices", len(p.Choices)),
		zap.Bool("promotion", p.Kind == PromotionPrompt),
	)
	return Decision{Kind: Prompt, Deltas: deltas}
}

func (a *Arbiter) commit(m board.CandidateMove, deltas []board.SquareDelta) Decision {
	a.prompt = PromptView{}
	a.step(Committing)
	return Decision{Kind: Commit, Move: m, Deltas: deltas}
}

func (a *Arbiter) reject(err error, deltas []board.SquareDelta) Decision {
	a.step(Rejected)
	obslog.L().Info("move_rejected", zap.Error(err), zap.Stringers("deltas", deltas))
	a.prompt = PromptView{}
	a.settler.Hold()
	a.step(Idle)
	return Decision{Kind: Reject, Err: err, Deltas: deltas}
}

func (a *Arbiter) timedOut(since, now time.Time) bool {
	return a.cfg.ConfirmTimeout > 0 && !since.IsZero() && now.Sub(since) >= a.cfg.ConfirmTimeout
}

func (a *Arbiter) step(next State) {
	if a.state == next {
		return
	}
	obslog.L().Debug("arbiter_state", zap.Stringer("from", a.state), zap.Stringer("to", next))
	a.state = next
}

// inHand reports pieces lifted with nothing put down yet.
func inHand(deltas []board.SquareDelta) bool {
	for _, d := range deltas {
		if d.Change != board.Lifted {
			return false
		}
	}
	return true
}
