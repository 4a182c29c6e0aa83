package board

import (
	"errors"
	"fmt"
	"strings"
)

// Square is a board coordinate stored as rank*8+file (a1 = 0, h8 = 63).
type Square uint8

// NoSquare marks an absent optional square.
const NoSquare Square = 0xFF

var (
	ErrSquareOutOfRange = errors.New("square out of range")
	ErrBadFEN           = errors.New("invalid fen")
)

// NewSquare builds a square from zero-based file and rank.
func NewSquare(file, rank int) (Square, error) {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return NoSquare, fmt.Errorf("%w: file=%d rank=%d", ErrSquareOutOfRange, file, rank)
	}
	return Square(rank*8 + file), nil
}

// MustSquare panics on invalid coordinates; intended for constant input.
func MustSquare(name string) Square {
	sq, err := ParseSquare(name)
	if err != nil {
		panic(err)
	}
	return sq
}

// ParseSquare parses algebraic coordinates such as "e4".
func ParseSquare(name string) (Square, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	if len(s) != 2 {
		return NoSquare, fmt.Errorf("%w: %q", ErrSquareOutOfRange, name)
	}
	return NewSquare(int(s[0])-'a', int(s[1])-'1')
}

func (s Square) Valid() bool { return s < 64 }
func (s Square) File() int   { return int(s) % 8 }
func (s Square) Rank() int   { return int(s) / 8 }

func (s Square) String() string {
	if !s.Valid() {
		return "-"
	}
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}

// Side is one of the two colours.
type Side uint8

const (
	White Side = iota
	Black
)

func (s Side) Other() Side {
	if s == White {
		return Black
	}
	return White
}

func (s Side) String() string {
	if s == Black {
		return "black"
	}
	return "white"
}

// ParseSide accepts "white", "black", "w" and "b".
func ParseSide(v string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	}
	return White, false
}

// backRank is the rank index where side's pieces start.
func (s Side) backRank() int {
	if s == Black {
		return 7
	}
	return 0
}

// lastRank is the promotion rank for side's pawns.
func (s Side) lastRank() int { return s.Other().backRank() }

func (s Side) forward() int {
	if s == Black {
		return -1
	}
	return 1
}

type PieceKind uint8

const (
	NoKind PieceKind = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

var kindLetters = [...]byte{' ', 'p', 'n', 'b', 'r', 'q', 'k'}

// Letter returns the lower-case letter used by FEN and UCI.
func (k PieceKind) Letter() byte {
	if int(k) < len(kindLetters) {
		return kindLetters[k]
	}
	return ' '
}

func (k PieceKind) String() string {
	switch k {
	case Pawn:
		return "pawn"
	case Knight:
		return "knight"
	case Bishop:
		return "bishop"
	case Rook:
		return "rook"
	case Queen:
		return "queen"
	case King:
		return "king"
	}
	return "none"
}

// KindFromLetter maps a FEN/UCI letter of either case to a kind.
func KindFromLetter(c byte) PieceKind {
	switch c {
	case 'p', 'P':
		return Pawn
	case 'n', 'N':
		return Knight
	case 'b', 'B':
		return Bishop
	case 'r', 'R':
		return Rook
	case 'q', 'Q':
		return Queen
	case 'k', 'K':
		return King
	}
	return NoKind
}

// PromotionKinds lists the legal promotion targets in menu order.
var PromotionKinds = []PieceKind{Queen, Rook, Bishop, Knight}

// Piece is a kind plus colour. The zero value is an empty square.
type Piece struct {
	Kind PieceKind
	Side Side
}

var NoPiece = Piece{}

func (p Piece) Empty() bool { return p.Kind == NoKind }

func (p Piece) String() string {
	if p.Empty() {
		return "empty"
	}
	return p.Side.String() + " " + p.Kind.String()
}
