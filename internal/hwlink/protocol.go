// Package hwlink talks to the board controller over a UART: occupancy
// readings and button presses come in, LED frames and moves go out.
package hwlink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/feedback"
)

const (
	inPrefix  = "heypi"
	outPrefix = "heyArduino"
)

var ErrUnknownLine = errors.New("unknown controller line")

type Button uint8

const (
	NoButton Button = iota
	ButtonNewGame
	ButtonHint
	ButtonOK
	ButtonDraw
	ButtonBack
	ButtonShutdown
	// ButtonPromotion carries Input.Promotion.
	ButtonPromotion
	// ButtonChoice carries Input.Index (1-8).
	ButtonChoice
)

func (b Button) String() string {
	switch b {
	case ButtonNewGame:
		return "new_game"
	case ButtonHint:
		return "hint"
	case ButtonOK:
		return "ok"
	case ButtonDraw:
		return "draw"
	case ButtonBack:
		return "back"
	case ButtonShutdown:
		return "shutdown"
	case ButtonPromotion:
		return "promotion"
	case ButtonChoice:
		return "choice"
	}
	return "none"
}

type Input struct {
	Button    Button
	Promotion board.PieceKind
	Index     int
	At        time.Time
}

// Message is one decoded controller line: a reading or a button.
type Message struct {
	Snapshot *board.Snapshot
	Input    *Input
}

var buttonTokens = map[string]Button{
	"n": ButtonNewGame, "new": ButtonNewGame, "newgame": ButtonNewGame, "btn_new": ButtonNewGame,
	"hint": ButtonHint, "btn_hint": ButtonHint,
	"ok": ButtonOK, "btnok": ButtonOK, "btn_ok": ButtonOK,
	"draw": ButtonDraw, "btn_draw": ButtonDraw,
	"btn_back": ButtonBack, "back": ButtonBack,
	"shutdown": ButtonShutdown,
}

// ParseLine decodes a line from the controller. Lines without the heypi
// prefix are accepted too since some firmware builds drop it.
func ParseLine(line string, at time.Time) (Message, error) {
	p := strings.ToLower(strings.TrimSpace(line))
	p = strings.TrimPrefix(p, inPrefix)
	p = strings.TrimSpace(p)
	if p == "" {
		return Message{}, fmt.Errorf("%w: empty", ErrUnknownLine)
	}

	if hex, ok := strings.CutPrefix(p, "occ_"); ok {
		occ, err := board.ParseOccupancyHex(hex)
		if err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrUnknownLine, err)
		}
		return Message{Snapshot: &board.Snapshot{Occupancy: occ, At: at}}, nil
	}
	if b, ok := buttonTokens[p]; ok {
		return Message{Input: &Input{Button: b, At: at}}, nil
	}
	if rest, ok := strings.CutPrefix(p, "btn_"); ok {
		if len(rest) == 1 {
			if kind := board.KindFromLetter(rest[0]); isPromotionKind(kind) {
				return Message{Input: &Input{Button: ButtonPromotion, Promotion: kind, At: at}}, nil
			}
		}
		if n, err := strconv.Atoi(rest); err == nil && n >= 1 && n <= 8 {
			return Message{Input: &Input{Button: ButtonChoice, Index: n, At: at}}, nil
		}
	}
	return Message{}, fmt.Errorf("%w: %q", ErrUnknownLine, line)
}

func isPromotionKind(k board.PieceKind) bool {
	for _, p := range board.PromotionKinds {
		if p == k {
			return true
		}
	}
	return false
}

// FrameLine encodes f in LED strip order.
func FrameLine(f feedback.Frame, layout feedback.Layout) string {
	var b strings.Builder
	b.WriteString(outPrefix)
	b.WriteString("frame_")
	b.WriteString(f.Effect.String())
	b.WriteByte('_')
	for _, c := range layout.Strip(f) {
		b.WriteString(c.Hex())
	}
	return b.String()
}

// MoveLine announces a move the player has to mirror on the board.
func MoveLine(m board.CandidateMove) string {
	return outPrefix + "m" + m.UCI() + captureSuffix(m)
}

// HintLine announces a suggested move.
func HintLine(m board.CandidateMove) string {
	return outPrefix + "hint_" + m.UCI() + captureSuffix(m)
}

func captureSuffix(m board.CandidateMove) string {
	if m.Captured.Valid() {
		return "_cap"
	}
	return ""
}
