// Package puzzle runs single-solution chess puzzles on the board: the player
// has to find the solution moves and the channel answers with the replies.
package puzzle

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/smartchess/internal/board"
)

var ErrBadPuzzle = errors.New("invalid puzzle")

type Puzzle struct {
	ID     string
	Rating int
	// FEN is the position the solver starts from.
	FEN string
	// Solution alternates solver moves and replies, in UCI.
	Solution []string
}

// FromGame builds the puzzle that starts after ply initialPly of a game given
// as SAN move text. Move numbers and a trailing result are skipped.
func FromGame(id, moveText string, initialPly int, solution []string) (Puzzle, error) {
	game := nchess.NewGame()
	plies := 0
	for _, tok := range strings.Fields(moveText) {
		if plies > initialPly {
			break
		}
		switch tok {
		case "1-0", "0-1", "1/2-1/2", "*":
			continue
		}
		san := strings.TrimLeft(tok, "0123456789.")
		if san == "" {
			continue
		}
		if err := game.PushMove(san, nil); err != nil {
			return Puzzle{}, fmt.Errorf("%w: %s: ply %d %q: %v", ErrBadPuzzle, id, plies+1, san, err)
		}
		plies++
	}
	if plies != initialPly+1 {
		return Puzzle{}, fmt.Errorf("%w: %s: game has %d plies, puzzle starts after %d", ErrBadPuzzle, id, plies, initialPly+1)
	}
	p := Puzzle{ID: id, FEN: game.Position().String()}
	for _, m := range solution {
		p.Solution = append(p.Solution, strings.ToLower(strings.TrimSpace(m)))
	}
	if err := p.Validate(); err != nil {
		return Puzzle{}, err
	}
	return p, nil
}

// Validate replays the solution from the start position.
func (p Puzzle) Validate() error {
	if len(p.Solution) == 0 {
		return fmt.Errorf("%w: %s: empty solution", ErrBadPuzzle, p.ID)
	}
	opt, err := nchess.FEN(p.FEN)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadPuzzle, p.ID, err)
	}
	game := nchess.NewGame(opt)
	for i, m := range p.Solution {
		if err := game.PushNotationMove(m, nchess.UCINotation{}, nil); err != nil {
			return fmt.Errorf("%w: %s: solution move %d %q: %v", ErrBadPuzzle, p.ID, i+1, m, err)
		}
	}
	return nil
}

// Start returns the start position; the side to move is the solver.
func (p Puzzle) Start() (board.Position, error) {
	pos, err := board.ParseFEN(p.FEN)
	if err != nil {
		return board.Position{}, fmt.Errorf("%w: %s: %v", ErrBadPuzzle, p.ID, err)
	}
	return pos, nil
}
