package rules

import (
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"

	"github.com/park285/smartchess/internal/board"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

func eco() *opening.BookECO {
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	return ecoBook
}

// Opening names the most specific ECO opening the moves follow, e.g.
// "B20 Sicilian Defense". Games not started from the standard position have none.
func (s *Standard) Opening(start board.Position, moves []string) string {
	if len(moves) == 0 || start.FEN() != board.StartFEN {
		return ""
	}
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return ""
		}
	}
	o := eco().Find(game.Moves())
	if o == nil {
		return ""
	}
	return o.Code() + " " + o.Title()
}
