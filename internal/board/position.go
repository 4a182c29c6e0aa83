package board

import (
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// CastlingRights is a bitmask of the four castling options.
type CastlingRights uint8

const (
	WhiteKingside CastlingRights = 1 << iota
	WhiteQueenside
	BlackKingside
	BlackQueenside
)

func castleRight(side Side, tag MoveTag) CastlingRights {
	switch {
	case side == White && tag == TagCastleKingside:
		return WhiteKingside
	case side == White && tag == TagCastleQueenside:
		return WhiteQueenside
	case side == Black && tag == TagCastleKingside:
		return BlackKingside
	case side == Black && tag == TagCastleQueenside:
		return BlackQueenside
	}
	return 0
}

// Position is a complete logical game state. It is a value; copies are independent.
type Position struct {
	Squares   [64]Piece
	Turn      Side
	Castling  CastlingRights
	EnPassant Square
	Halfmove  int
	Fullmove  int
}

func StartingPosition() Position {
	p, err := ParseFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Position) At(sq Square) Piece {
	if !sq.Valid() {
		return NoPiece
	}
	return p.Squares[sq]
}

// Occupancy is what a correctly set-up physical board reads for this position.
func (p Position) Occupancy() Occupancy {
	var o Occupancy
	for i, pc := range p.Squares {
		if !pc.Empty() {
			o |= 1 << uint(i)
		}
	}
	return o
}

// KingSquare returns NoSquare when side has no king.
func (p Position) KingSquare(side Side) Square {
	for i, pc := range p.Squares {
		if pc.Kind == King && pc.Side == side {
			return Square(i)
		}
	}
	return NoSquare
}

// ParseFEN reads a six-field FEN. The move clocks may be omitted.
func ParseFEN(fen string) (Position, error) {
	fields := strings.Fields(fen)
	if len(fields) == 4 {
		fields = append(fields, "0", "1")
	}
	var lp nchess.Position
	if err := lp.UnmarshalText([]byte(strings.Join(fields, " "))); err != nil {
		return Position{}, fmt.Errorf("%w: %q: %v", ErrBadFEN, fen, err)
	}
	p := Position{
		Turn:      White,
		EnPassant: NoSquare,
		Halfmove:  lp.HalfMoveClock(),
	}
	// validated above
	p.Fullmove, _ = strconv.Atoi(fields[5])
	for sq, pc := range lp.Board().SquareMap() {
		p.Squares[sq] = pieceFromLib(pc)
	}
	if lp.Turn() == nchess.Black {
		p.Turn = Black
	}
	rights := lp.CastleRights()
	for _, c := range []struct {
		side  nchess.Color
		wing  nchess.Side
		right CastlingRights
	}{
		{nchess.White, nchess.KingSide, WhiteKingside},
		{nchess.White, nchess.QueenSide, WhiteQueenside},
		{nchess.Black, nchess.KingSide, BlackKingside},
		{nchess.Black, nchess.QueenSide, BlackQueenside},
	} {
		if rights.CanCastle(c.side, c.wing) {
			p.Castling |= c.right
		}
	}
	if ep := lp.EnPassantSquare(); ep != nchess.NoSquare {
		p.EnPassant = Square(ep)
	}
	return p, nil
}

func (p Position) FEN() string {
	var b strings.Builder
	b.WriteString(nchess.NewBoard(p.libSquares()).String())
	if p.Turn == White {
		b.WriteString(" w ")
	} else {
		b.WriteString(" b ")
	}
	castling := ""
	for _, c := range []struct {
		right  CastlingRights
		letter string
	}{{WhiteKingside, "K"}, {WhiteQueenside, "Q"}, {BlackKingside, "k"}, {BlackQueenside, "q"}} {
		if p.Castling&c.right != 0 {
			castling += c.letter
		}
	}
	if castling == "" {
		castling = "-"
	}
	b.WriteString(castling)
	b.WriteByte(' ')
	b.WriteString(p.EnPassant.String())
	fmt.Fprintf(&b, " %d %d", p.Halfmove, p.Fullmove)
	return b.String()
}

func (p Position) libSquares() map[nchess.Square]nchess.Piece {
	m := make(map[nchess.Square]nchess.Piece, 32)
	for i, pc := range p.Squares {
		if !pc.Empty() {
			m[nchess.Square(i)] = pieceToLib(pc)
		}
	}
	return m
}

var libKinds = map[nchess.PieceType]PieceKind{
	nchess.King:   King,
	nchess.Queen:  Queen,
	nchess.Rook:   Rook,
	nchess.Bishop: Bishop,
	nchess.Knight: Knight,
	nchess.Pawn:   Pawn,
}

func pieceFromLib(pc nchess.Piece) Piece {
	side := White
	if pc.Color() == nchess.Black {
		side = Black
	}
	return Piece{Kind: libKinds[pc.Type()], Side: side}
}

func pieceToLib(pc Piece) nchess.Piece {
	color := nchess.White
	if pc.Side == Black {
		color = nchess.Black
	}
	for t, k := range libKinds {
		if k == pc.Kind {
			return nchess.NewPiece(t, color)
		}
	}
	return nchess.NoPiece
}

// castleSquares returns king from/to and rook from/to for a castle of side on the given wing.
func castleSquares(side Side, tag MoveTag) (kingFrom, kingTo, rookFrom, rookTo Square) {
	r := side.backRank() * 8
	kingFrom = Square(r + 4)
	if tag == TagCastleQueenside {
		return kingFrom, Square(r + 2), Square(r), Square(r + 3)
	}
	return kingFrom, Square(r + 6), Square(r + 7), Square(r + 5)
}

// CastleSquares exposes the king and rook squares of a castle.
func CastleSquares(side Side, tag MoveTag) (kingFrom, kingTo, rookFrom, rookTo Square) {
	return castleSquares(side, tag)
}

// apply performs m for the side to move after checking the move's structural
// preconditions. It does not test for check; that belongs to the rules oracle.
func (p Position) apply(m CandidateMove) (Position, error) {
	side := p.Turn
	mover := p.At(m.From)
	if !m.From.Valid() || !m.To.Valid() || m.From == m.To {
		return p, fmt.Errorf("bad squares %s-%s", m.From, m.To)
	}
	if mover.Empty() || mover.Side != side {
		return p, fmt.Errorf("no %s piece on %s", side, m.From)
	}
	target := p.At(m.To)
	if !target.Empty() && target.Side == side {
		return p, fmt.Errorf("%s occupied by own %s", m.To, target.Kind)
	}
	if target.Kind == King {
		return p, fmt.Errorf("king capture on %s", m.To)
	}

	next := p
	next.EnPassant = NoSquare
	captured := !target.Empty()
	df := m.To.File() - m.From.File()
	dr := m.To.Rank() - m.From.Rank()

	switch m.Tag {
	case TagCastleKingside, TagCastleQueenside:
		kf, kt, rf, rt := castleSquares(side, m.Tag)
		if mover.Kind != King || m.From != kf || m.To != kt {
			return p, fmt.Errorf("castle geometry %s-%s", m.From, m.To)
		}
		if p.Castling&castleRight(side, m.Tag) == 0 {
			return p, fmt.Errorf("castling right lost for %s", side)
		}
		if rook := p.At(rf); rook.Kind != Rook || rook.Side != side {
			return p, fmt.Errorf("no rook on %s", rf)
		}
		lo, hi := rf, kf
		if lo > hi {
			lo, hi = hi, lo
		}
		for sq := lo + 1; sq < hi; sq++ {
			if !p.At(sq).Empty() {
				return p, fmt.Errorf("castle path blocked on %s", sq)
			}
		}
		next.Squares[rt] = next.Squares[rf]
		next.Squares[rf] = NoPiece
	case TagEnPassant:
		capSq := Square(m.From.Rank()*8 + m.To.File())
		if mover.Kind != Pawn || m.To != p.EnPassant || dr != side.forward() || abs(df) != 1 {
			return p, fmt.Errorf("en passant geometry %s-%s", m.From, m.To)
		}
		if m.Captured.Valid() && m.Captured != capSq {
			return p, fmt.Errorf("en passant captured square %s", m.Captured)
		}
		if victim := p.At(capSq); victim.Kind != Pawn || victim.Side == side {
			return p, fmt.Errorf("no pawn to capture on %s", capSq)
		}
		next.Squares[capSq] = NoPiece
		captured = true
	case TagPromotion:
		if mover.Kind != Pawn || m.To.Rank() != side.lastRank() {
			return p, fmt.Errorf("promotion from %s-%s", m.From, m.To)
		}
		if df != 0 && target.Empty() {
			return p, fmt.Errorf("pawn diagonal %s-%s to empty square", m.From, m.To)
		}
		switch m.Promotion {
		case Queen, Rook, Bishop, Knight:
		default:
			return p, fmt.Errorf("promotion kind unset")
		}
	case TagNone:
		if mover.Kind == Pawn && m.To.Rank() == side.lastRank() {
			return p, fmt.Errorf("pawn reaches %s without promotion", m.To)
		}
		if mover.Kind == King && abs(df) == 2 {
			return p, fmt.Errorf("king jump %s-%s not tagged castle", m.From, m.To)
		}
		if mover.Kind == Pawn && df != 0 && target.Empty() {
			return p, fmt.Errorf("pawn diagonal %s-%s to empty square", m.From, m.To)
		}
	default:
		return p, fmt.Errorf("unknown move tag %d", m.Tag)
	}
	if m.Tag != TagEnPassant && m.Captured.Valid() && (m.Captured != m.To || !captured) {
		return p, fmt.Errorf("captured square %s does not match", m.Captured)
	}

	next.Squares[m.To] = mover
	next.Squares[m.From] = NoPiece
	if m.Tag == TagPromotion {
		next.Squares[m.To] = Piece{Kind: m.Promotion, Side: side}
	}

	if mover.Kind == Pawn && abs(dr) == 2 {
		next.EnPassant = Square((m.From.Rank()+side.forward())*8 + m.From.File())
	}
	if mover.Kind == King {
		next.Castling &^= castleRight(side, TagCastleKingside) | castleRight(side, TagCastleQueenside)
	}
	next.Castling &^= cornerRight(m.From) | cornerRight(m.To)

	if mover.Kind == Pawn || captured {
		next.Halfmove = 0
	} else {
		next.Halfmove++
	}
	if side == Black {
		next.Fullmove++
	}
	next.Turn = side.Other()
	return next, nil
}

func cornerRight(sq Square) CastlingRights {
	switch sq {
	case 0:
		return WhiteQueenside
	case 7:
		return WhiteKingside
	case 56:
		return BlackQueenside
	case 63:
		return BlackKingside
	}
	return 0
}

// Apply returns the position after m, or an error describing the failed precondition.
func (p Position) Apply(m CandidateMove) (Position, error) { return p.apply(m) }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
