package rules

import (
	"context"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/smartchess/internal/board"
)

// Oracle answers legality questions about a position.
type Oracle interface {
	IsLegal(pos board.Position, m board.CandidateMove) bool
	Suggest(ctx context.Context, pos board.Position) (board.CandidateMove, bool, error)
}

// Suggester produces a best move for a position, typically an engine.
type Suggester interface {
	BestMove(ctx context.Context, fen string) (string, error)
}

// Result is the final state of a game.
type Result struct {
	Over   bool
	Winner board.Side
	Draw   bool
	Method string
}

// PGN returns "1-0", "0-1", "1/2-1/2" or "*".
func (r Result) PGN() string {
	switch {
	case !r.Over:
		return "*"
	case r.Draw:
		return "1/2-1/2"
	case r.Winner == board.White:
		return "1-0"
	default:
		return "0-1"
	}
}

// Standard is the rules oracle backed by the chess library. Hints come from the
// optional suggester; without one Suggest always reports no move.
type Standard struct {
	hints Suggester
}

func NewStandard(hints Suggester) *Standard {
	return &Standard{hints: hints}
}

func (s *Standard) HintsEnabled() bool { return s != nil && s.hints != nil }

func loadGame(pos board.Position) (*nchess.Game, error) {
	opt, err := nchess.FEN(pos.FEN())
	if err != nil {
		return nil, fmt.Errorf("load fen: %w", err)
	}
	return nchess.NewGame(opt), nil
}

func decode(game *nchess.Game, m board.CandidateMove) (*nchess.Move, error) {
	return nchess.UCINotation{}.Decode(game.Position(), m.UCI())
}

// IsLegal reports whether m is a legal move in pos. A promotion with no kind
// chosen is legal when some promotion kind would be.
func (s *Standard) IsLegal(pos board.Position, m board.CandidateMove) bool {
	if m.NeedsPromotion() {
		return len(s.PromotionKinds(pos, m)) > 0
	}
	game, err := loadGame(pos)
	if err != nil {
		return false
	}
	mv, err := decode(game, m)
	if err != nil {
		return false
	}
	if err := game.Move(mv, nil); err != nil {
		return false
	}
	// the library infers castling and en passant from squares; make sure our tag agrees
	return board.Classify(pos, m).Tag == m.Tag
}

// PromotionKinds lists the promotion pieces that make m legal, in menu order.
func (s *Standard) PromotionKinds(pos board.Position, m board.CandidateMove) []board.PieceKind {
	if m.Tag != board.TagPromotion {
		return nil
	}
	var out []board.PieceKind
	for _, kind := range board.PromotionKinds {
		if s.IsLegal(pos, m.WithPromotion(kind)) {
			out = append(out, kind)
		}
	}
	return out
}

// SAN renders m in standard algebraic notation, or "" when m is not legal.
func (s *Standard) SAN(pos board.Position, m board.CandidateMove) string {
	game, err := loadGame(pos)
	if err != nil {
		return ""
	}
	mv, err := decode(game, m)
	if err != nil {
		return ""
	}
	return nchess.AlgebraicNotation{}.Encode(game.Position(), mv)
}

// Outcome evaluates checkmate, stalemate and insufficient material for pos.
func (s *Standard) Outcome(pos board.Position) Result {
	game, err := loadGame(pos)
	if err != nil {
		return Result{}
	}
	return resultFromGame(game.Outcome(), game.Method())
}

func resultFromGame(outcome nchess.Outcome, method nchess.Method) Result {
	r := Result{Method: strings.ToLower(method.String())}
	switch outcome {
	case nchess.WhiteWon:
		r.Over, r.Winner = true, board.White
	case nchess.BlackWon:
		r.Over, r.Winner = true, board.Black
	case nchess.Draw:
		r.Over, r.Draw = true, true
	default:
		r.Method = ""
	}
	return r
}

// Suggest asks the hint engine for a move. It reports false when hints are off.
func (s *Standard) Suggest(ctx context.Context, pos board.Position) (board.CandidateMove, bool, error) {
	if !s.HintsEnabled() {
		return board.CandidateMove{}, false, nil
	}
	uci, err := s.hints.BestMove(ctx, pos.FEN())
	if err != nil {
		return board.CandidateMove{}, false, fmt.Errorf("suggest: %w", err)
	}
	m, err := board.MoveFromUCI(pos, uci)
	if err != nil {
		return board.CandidateMove{}, false, fmt.Errorf("suggest: %w", err)
	}
	if !s.IsLegal(pos, m) {
		return board.CandidateMove{}, false, fmt.Errorf("suggest: engine proposed illegal %s", uci)
	}
	return m, true, nil
}
