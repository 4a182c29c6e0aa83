package remote

import "strings"

// Message is one event from the account or game stream.
type Message struct {
	Type string `json:"type"`

	// gameStart
	Game *GameRef `json:"game,omitempty"`

	// gameFull
	ID    string     `json:"id,omitempty"`
	White *Player    `json:"white,omitempty"`
	Black *Player    `json:"black,omitempty"`
	State *GameState `json:"state,omitempty"`

	// gameState carries its fields inline
	GameState
}

type GameRef struct {
	ID       string `json:"id"`
	GameID   string `json:"gameId"`
	Opponent struct {
		Username string `json:"username"`
	} `json:"opponent"`
}

func (g *GameRef) GameKey() string {
	if g == nil {
		return ""
	}
	if g.ID != "" {
		return g.ID
	}
	return g.GameID
}

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Me   bool   `json:"me"`
	User *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"user,omitempty"`
}

// Identity returns the first of id, name, user id, user name that is set.
func (p *Player) Identity() string {
	if p == nil {
		return ""
	}
	for _, v := range []string{p.ID, p.Name} {
		if v != "" {
			return v
		}
	}
	if p.User != nil {
		if p.User.ID != "" {
			return p.User.ID
		}
		return p.User.Name
	}
	return ""
}

type GameState struct {
	Moves  string `json:"moves,omitempty"`
	Status string `json:"status,omitempty"`
	Winner string `json:"winner,omitempty"`
}

func (s GameState) MoveList() []string { return strings.Fields(s.Moves) }

// Over reports a status that ends the game.
func (s GameState) Over() bool {
	switch s.Status {
	case "", "created", "started":
		return false
	}
	return true
}

// Result maps the final status to a PGN result.
func (s GameState) Result() string {
	switch {
	case s.Winner == "white":
		return "1-0"
	case s.Winner == "black":
		return "0-1"
	case s.Status == "aborted" || s.Status == "noStart":
		return "*"
	}
	return "1/2-1/2"
}
