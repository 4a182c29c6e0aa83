package engine

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strings"

	chesslib "github.com/corentings/chess/v2"
)

// bookMaxPly stops book lookups once the game has left the opening.
const bookMaxPly = 20

// Polyglot writes castling as king takes rook.
var castleAliases = map[string]string{
	"e1h1": "e1g1",
	"e1a1": "e1c1",
	"e8h8": "e8g8",
	"e8a8": "e8c8",
}

type BookMove struct {
	Move   string
	Weight uint16
}

// Book is a Polyglot opening book.
type Book struct {
	book *chesslib.PolyglotBook
}

func OpenBook(path string) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("polyglot book path required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", path, err)
	}
	defer f.Close()
	b, err := ReadBook(f)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book %q: %w", path, err)
	}
	return b, nil
}

func ReadBook(r io.Reader) (*Book, error) {
	book, err := chesslib.LoadFromReader(r)
	if err != nil {
		return nil, err
	}
	return &Book{book: book}, nil
}

// Moves lists the legal book moves for the game given as start FEN plus UCI
// moves, heaviest first.
func (b *Book) Moves(fen string, moves []string) ([]BookMove, error) {
	game, err := replay(fen, moves)
	if err != nil {
		return nil, err
	}
	hash, err := chesslib.NewZobristHasher().HashPosition(game.FEN())
	if err != nil {
		return nil, fmt.Errorf("compute polyglot hash: %w", err)
	}
	var out []BookMove
	for _, entry := range b.book.FindMoves(chesslib.ZobristHashToUint64(hash)) {
		mv := chesslib.DecodeMove(entry.Move).ToMove()
		uci := mv.String()
		if !legalAfter(fen, moves, uci) {
			alias, ok := castleAliases[uci]
			if !ok || !legalAfter(fen, moves, alias) {
				continue
			}
			uci = alias
		}
		out = append(out, BookMove{Move: uci, Weight: entry.Weight})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out, nil
}

// pickBookMove draws a move with probability proportional to its weight.
func pickBookMove(moves []BookMove, r *rand.Rand) BookMove {
	total := 0
	for _, m := range moves {
		total += int(m.Weight)
	}
	if total == 0 {
		return moves[0]
	}
	n := r.Intn(total)
	for _, m := range moves {
		n -= int(m.Weight)
		if n < 0 {
			return m
		}
	}
	return moves[len(moves)-1]
}

func replay(fen string, moves []string) (*chesslib.Game, error) {
	var game *chesslib.Game
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		game = chesslib.NewGame()
	} else {
		opt, err := chesslib.FEN(fen)
		if err != nil {
			return nil, fmt.Errorf("parse fen %q: %w", fen, err)
		}
		game = chesslib.NewGame(opt)
	}
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, chesslib.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("apply move %q: %w", mv, err)
		}
	}
	return game, nil
}

func legalAfter(fen string, moves []string, uci string) bool {
	_, err := replay(fen, append(append([]string(nil), moves...), uci))
	return err == nil
}
