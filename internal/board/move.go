package board

import (
	"fmt"
	"strings"
	"time"
)

// MoveTag marks moves whose physical footprint differs from a plain from/to move.
type MoveTag uint8

const (
	TagNone MoveTag = iota
	TagCastleKingside
	TagCastleQueenside
	TagEnPassant
	TagPromotion
)

func (t MoveTag) String() string {
	switch t {
	case TagCastleKingside:
		return "castle-kingside"
	case TagCastleQueenside:
		return "castle-queenside"
	case TagEnPassant:
		return "en-passant"
	case TagPromotion:
		return "promotion"
	}
	return "none"
}

func (t MoveTag) IsCastle() bool { return t == TagCastleKingside || t == TagCastleQueenside }

// CandidateMove is a speculative move inferred from sensor data or received from a peer.
type CandidateMove struct {
	From      Square
	To        Square
	Captured  Square
	Promotion PieceKind
	Tag       MoveTag
}

// NeedsPromotion reports a promotion whose piece kind has not been chosen yet.
func (m CandidateMove) NeedsPromotion() bool {
	return m.Tag == TagPromotion && m.Promotion == NoKind
}

// WithPromotion returns a copy with the promotion kind set.
func (m CandidateMove) WithPromotion(kind PieceKind) CandidateMove {
	m.Promotion = kind
	return m
}

// UCI renders long algebraic notation ("e7e8q").
func (m CandidateMove) UCI() string {
	s := m.From.String() + m.To.String()
	if m.Promotion != NoKind {
		s += string(m.Promotion.Letter())
	}
	return s
}

func (m CandidateMove) String() string {
	if m.Tag == TagNone {
		return m.UCI()
	}
	return m.UCI() + "(" + m.Tag.String() + ")"
}

// MoveFromUCI decodes a UCI move against pos, filling tag and captured square.
func MoveFromUCI(pos Position, uci string) (CandidateMove, error) {
	s := strings.ToLower(strings.TrimSpace(uci))
	if len(s) != 4 && len(s) != 5 {
		return CandidateMove{}, fmt.Errorf("bad uci move %q", uci)
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return CandidateMove{}, fmt.Errorf("bad uci move %q: %w", uci, err)
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return CandidateMove{}, fmt.Errorf("bad uci move %q: %w", uci, err)
	}
	m := CandidateMove{From: from, To: to, Captured: NoSquare}
	if len(s) == 5 {
		m.Promotion = KindFromLetter(s[4])
		if m.Promotion == NoKind || m.Promotion == King || m.Promotion == Pawn {
			return CandidateMove{}, fmt.Errorf("bad promotion in %q", uci)
		}
	}
	return Classify(pos, m), nil
}

// Classify fills Tag and Captured of a bare from/to move from the position.
func Classify(pos Position, m CandidateMove) CandidateMove {
	mover := pos.At(m.From)
	target := pos.At(m.To)
	m.Captured = NoSquare
	if !target.Empty() && target.Side != mover.Side {
		m.Captured = m.To
	}
	switch mover.Kind {
	case King:
		kf, kt, _, _ := castleSquares(mover.Side, TagCastleKingside)
		_, qt, _, _ := castleSquares(mover.Side, TagCastleQueenside)
		switch {
		case m.From == kf && m.To == kt:
			m.Tag = TagCastleKingside
		case m.From == kf && m.To == qt:
			m.Tag = TagCastleQueenside
		}
	case Pawn:
		switch {
		case m.To.Rank() == mover.Side.lastRank():
			m.Tag = TagPromotion
		case m.To == pos.EnPassant && target.Empty() && m.From.File() != m.To.File():
			m.Tag = TagEnPassant
			m.Captured = Square(m.From.Rank()*8 + m.To.File())
		}
	}
	return m
}

// ConfirmedMove is a validated move. Values are never mutated after creation.
type ConfirmedMove struct {
	CandidateMove
	Side Side
	Ply  int
	SAN  string
	At   time.Time
}

// Confirm wraps a validated candidate.
func Confirm(m CandidateMove, side Side, san string, at time.Time) ConfirmedMove {
	return ConfirmedMove{CandidateMove: m, Side: side, SAN: san, At: at}
}
