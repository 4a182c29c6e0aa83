package feedback

import (
	"github.com/park285/smartchess/internal/arbiter"
	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/rules"
)

type Phase uint8

const (
	PhaseOpening Phase = iota
	PhasePlaying
	PhaseOver
)

// View is everything the board's lights can reflect.
type View struct {
	Phase    Phase
	Position board.Position
	Step     arbiter.State
	Prompt   arbiter.PromptView

	LastMove *board.ConfirmedMove
	// LastLocal marks a last move made on this board.
	LastLocal bool
	Hint      *board.CandidateMove
	Check     board.Square
	// Invalid requests the illegal-action flash.
	Invalid bool

	// Physical is the settled sensor reading; Expected is set while the
	// player must reproduce a move made elsewhere.
	Physical  board.Occupancy
	Expected  *board.Occupancy
	Displaced board.Occupancy

	Disconnected bool
	Result       rules.Result
}

// Promotion menu squares, one per board.PromotionKinds entry.
var promotionMenu = [4]board.Square{
	board.MustSquare("c4"), board.MustSquare("d4"), board.MustSquare("e4"), board.MustSquare("f4"),
}

var promotionColors = [4]RGB{Magenta, Red, Blue, Green}

// Choice destinations are coloured by their 1-based index.
var choiceColors = []RGB{Magenta, Cyan, Orange, Green, Red, Blue, Yellow, White}

// PromotionSquare returns the menu square of kind, or board.NoSquare.
func PromotionSquare(kind board.PieceKind) board.Square {
	for i, k := range board.PromotionKinds {
		if k == kind {
			return promotionMenu[i]
		}
	}
	return board.NoSquare
}

// Compose renders v. It is pure: equal views give equal frames.
func Compose(v View) Frame {
	var f Frame
	switch {
	case v.Phase == PhaseOpening:
		f.Effect = EffectOpening
		for sq := board.Square(0); sq < 64; sq++ {
			f.Squares[sq] = marking(sq)
		}
		return f
	case v.Invalid:
		f.Effect = EffectFlash
		f.fill(Blue)
		for i := 0; i < 8; i++ {
			a, _ := board.NewSquare(i, i)
			b, _ := board.NewSquare(7-i, i)
			f.set(a, Red)
			f.set(b, Red)
		}
		return f
	case v.Phase == PhaseOver:
		gameOver(&f, v)
		return f
	}

	for sq := board.Square(0); sq < 64; sq++ {
		f.Squares[sq] = marking(sq)
	}
	if m := v.LastMove; m != nil {
		color, end := Orange, Green
		if v.LastLocal {
			color, end = Yellow, White
		}
		trail(&f, m.CandidateMove, color, end)
	}
	if h := v.Hint; h != nil {
		trail(&f, *h, Cyan, Blue)
	}
	if v.Check.Valid() {
		f.set(v.Check, Red)
	}
	for _, sq := range v.Displaced.Squares() {
		f.set(sq, Red)
	}
	if v.Expected != nil {
		for _, sq := range (v.Physical &^ *v.Expected).Squares() {
			f.set(sq, Orange)
		}
		for _, sq := range (*v.Expected &^ v.Physical).Squares() {
			f.set(sq, Green)
		}
	}
	if v.Step == arbiter.NeedsChoice {
		prompt(&f, v.Prompt)
	}
	if v.Disconnected {
		for _, name := range []string{"a1", "h1", "a8", "h8"} {
			f.set(board.MustSquare(name), Red)
		}
	}
	return f
}

// marking is the resting checkerboard.
func marking(sq board.Square) RGB {
	if (sq.File()+sq.Rank())%2 == 0 {
		return DarkMark
	}
	return LightMark
}

func trail(f *Frame, m board.CandidateMove, color, end RGB) {
	if m.Captured.Valid() {
		end = Magenta
	}
	squares := path(m.From, m.To)
	for _, sq := range squares[:len(squares)-1] {
		f.set(sq, color)
	}
	f.set(m.To, end)
}

func prompt(f *Frame, p arbiter.PromptView) {
	switch p.Kind {
	case arbiter.PromotionPrompt:
		f.set(p.Move.From, Yellow)
		f.set(p.Move.To, White)
		for i, sq := range promotionMenu {
			f.set(sq, promotionColors[i])
		}
	case arbiter.ChoicePrompt:
		for i, c := range p.Choices {
			f.set(c.From, Yellow)
			f.set(c.To, choiceColors[i%len(choiceColors)])
		}
	}
}

// gameOver draws a hash over the board: green for a decisive game, yellow for
// a draw, with the losing king's square in red.
func gameOver(f *Frame, v View) {
	f.Effect = EffectGameOver
	base := Green
	if v.Result.Draw {
		base = Yellow
	}
	f.fill(base)
	for sq := board.Square(0); sq < 64; sq++ {
		if x, y := sq.File(), sq.Rank(); x == 2 || x == 5 || y == 2 || y == 5 {
			f.Squares[sq] = White
		}
	}
	if v.Result.Over && !v.Result.Draw {
		f.set(v.Position.KingSquare(v.Result.Winner.Other()), Red)
	}
}
