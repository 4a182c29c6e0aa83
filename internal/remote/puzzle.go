package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/valyala/fasthttp"
)

// DailyPuzzle is the reply of the daily puzzle endpoint. The puzzle starts
// after ply InitialPly of the game PGN; Solution alternates solver and reply.
type DailyPuzzle struct {
	Game struct {
		ID  string `json:"id"`
		PGN string `json:"pgn"`
	} `json:"game"`
	Puzzle struct {
		ID         string   `json:"id"`
		Rating     int      `json:"rating"`
		InitialPly int      `json:"initialPly"`
		Solution   []string `json:"solution"`
		Themes     []string `json:"themes"`
	} `json:"puzzle"`
}

func (c *Client) DailyPuzzle(ctx context.Context) (DailyPuzzle, error) {
	var p DailyPuzzle
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/puzzle/daily", &p, true); err != nil {
		return DailyPuzzle{}, err
	}
	return p, nil
}

// ReadDailyPuzzle decodes a saved daily puzzle reply.
func ReadDailyPuzzle(r io.Reader) (DailyPuzzle, error) {
	var p DailyPuzzle
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return DailyPuzzle{}, fmt.Errorf("decode daily puzzle: %w", err)
	}
	return p, nil
}
