package game

import (
	"context"
	"strings"
	"time"

	"github.com/park285/smartchess/internal/arbiter"
	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/config"
	"github.com/park285/smartchess/internal/feedback"
)

// Status is a read-only summary of the loop for observers.
type Status struct {
	GameID       string    `json:"game_id"`
	Mode         string    `json:"mode"`
	Phase        string    `json:"phase"`
	FEN          string    `json:"fen"`
	Turn         string    `json:"turn"`
	Step         string    `json:"step"`
	MoveCount    int       `json:"move_count"`
	LastMove     string    `json:"last_move,omitempty"`
	Opening      string    `json:"opening,omitempty"`
	LocalSide    string    `json:"local_side,omitempty"`
	Opponent     string    `json:"opponent,omitempty"`
	Prompt       []string  `json:"prompt,omitempty"`
	Pending      int       `json:"pending_remote_moves"`
	Disconnected bool      `json:"disconnected"`
	Result       string    `json:"result,omitempty"`
	Method       string    `json:"method,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Status returns the state as of the last processed event.
func (l *Loop) Status() Status {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	return l.status
}

func phaseName(p feedback.Phase) string {
	switch p {
	case feedback.PhasePlaying:
		return "playing"
	case feedback.PhaseOver:
		return "over"
	}
	return "opening"
}

func (l *Loop) view(now time.Time) feedback.View {
	pos := l.tracker.CurrentPosition()
	v := feedback.View{
		Phase:        l.phase,
		Position:     pos,
		Step:         l.arb.State(),
		Prompt:       l.arb.Prompt(),
		LastLocal:    l.lastLocal,
		Hint:         l.hint,
		Check:        pos.CheckedKing(),
		Invalid:      now.Before(l.invalidUntil),
		Physical:     l.arb.Physical(),
		Disconnected: l.disconnected,
		Result:       l.result,
	}
	if m, ok := l.tracker.Last(); ok {
		v.LastMove = &m
	}
	if occ, ok := l.arb.Expected(); ok {
		v.Expected = &occ
	} else if l.arb.State() == arbiter.Idle {
		// pieces left off their squares by a rejected action
		v.Displaced = l.arb.Displaced()
	}
	return v
}

// render pushes the current view to the lights and refreshes Status.
func (l *Loop) render(ctx context.Context, now time.Time) {
	_, _ = l.director.Update(ctx, l.view(now))
	l.publishStatus(now)
}

func (l *Loop) publishStatus(now time.Time) {
	pos := l.tracker.CurrentPosition()
	st := Status{
		GameID:       l.gameID,
		Mode:         l.cfg.Mode,
		Phase:        phaseName(l.phase),
		FEN:          pos.FEN(),
		Turn:         pos.Turn.String(),
		Step:         l.arb.State().String(),
		MoveCount:    l.tracker.MoveCount(),
		Opponent:     l.opponent,
		Pending:      len(l.pending),
		Disconnected: l.disconnected,
		UpdatedAt:    now,
	}
	if l.attached {
		st.LocalSide = l.localSide.String()
		if l.cfg.Mode == config.ModeLocal {
			st.LocalSide = "both"
		}
	}
	if m, ok := l.tracker.Last(); ok {
		st.LastMove = m.UCI()
	}
	st.Opening = l.openingName()
	if l.arb.State() == arbiter.NeedsChoice {
		p := l.arb.Prompt()
		switch p.Kind {
		case arbiter.PromotionPrompt:
			for _, k := range board.PromotionKinds {
				st.Prompt = append(st.Prompt, p.Move.WithPromotion(k).UCI())
			}
		case arbiter.ChoicePrompt:
			for _, c := range p.Choices {
				st.Prompt = append(st.Prompt, c.UCI())
			}
		}
	}
	if l.phase == feedback.PhaseOver {
		st.Result = l.result.PGN()
		st.Method = l.result.Method
	}
	l.statusMu.Lock()
	l.status = st
	l.statusMu.Unlock()
}

func (l *Loop) openingName() string {
	history := l.tracker.History()
	moves := make([]string, len(history))
	for i, m := range history {
		moves[i] = m.UCI()
	}
	key := strings.Join(moves, " ")
	if key != l.openingKey {
		l.opening = l.rules.Opening(l.tracker.Base(), moves)
		l.openingKey = key
	}
	return l.opening
}
