package board

import nchess "github.com/corentings/chess/v2"

// CheckedKing returns the king square of the side to move when it is in check.
func (p Position) CheckedKing() Square {
	king := p.KingSquare(p.Turn)
	if !king.Valid() {
		return NoSquare
	}
	// With the attacker's king lifted the library does no self-check
	// filtering, so every attack on king shows up as a capture.
	attacker := p
	attacker.Turn = p.Turn.Other()
	attacker.Castling = 0
	attacker.EnPassant = NoSquare
	if k := attacker.KingSquare(attacker.Turn); k.Valid() {
		attacker.Squares[k] = NoPiece
	}
	var lp nchess.Position
	if err := lp.UnmarshalText([]byte(attacker.FEN())); err != nil {
		return NoSquare
	}
	for _, mv := range lp.ValidMoves() {
		if Square(mv.S2()) == king {
			return king
		}
	}
	return NoSquare
}
