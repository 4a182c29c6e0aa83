package movelog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/smartchess/internal/board"
)

// Game is a finished game as archived.
type Game struct {
	ID        string
	Mode      string
	White     string
	Black     string
	Result    string
	Method    string
	Entries   []Entry
	StartedAt time.Time
	EndedAt   time.Time
}

// Archive stores finished games in Postgres.
type Archive struct {
	db *sql.DB
}

func NewArchive(databaseURL string) (*Archive, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Save upserts g with its PGN.
func (a *Archive) Save(ctx context.Context, g Game) error {
	if a == nil || a.db == nil {
		return nil
	}
	var ucis []string
	for _, e := range g.Entries {
		switch e.Kind {
		case KindMove:
			ucis = append(ucis, e.UCI)
		case KindTakeback:
			if len(ucis) > 0 {
				ucis = ucis[:len(ucis)-1]
			}
		}
	}
	movesUCI, _ := json.Marshal(ucis)
	movesSAN, _ := json.Marshal(SANs(g.Entries))
	duration := g.EndedAt.Sub(g.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO board_games (
        game_id, mode, white_name, black_name,
        result, result_method, moves_uci, moves_san, pgn,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
      ) ON CONFLICT (game_id) DO UPDATE SET
        mode=EXCLUDED.mode,
        white_name=EXCLUDED.white_name,
        black_name=EXCLUDED.black_name,
        result=EXCLUDED.result,
        result_method=EXCLUDED.result_method,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := a.db.ExecContext(ctx, q,
		g.ID, g.Mode, g.White, g.Black,
		g.Result, strings.TrimSpace(g.Method), string(movesUCI), string(movesSAN), BuildPGN(g),
		g.StartedAt, g.EndedAt, duration,
	)
	if err != nil {
		return fmt.Errorf("archive game %s: %w", g.ID, err)
	}
	return nil
}

// BuildPGN renders g with the seven-tag roster and numbered SAN moves.
func BuildPGN(g Game) string {
	result := g.Result
	if result == "" {
		result = "*"
	}
	date := g.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	var b strings.Builder
	b.WriteString("[Event \"Smart board game\"]\n")
	b.WriteString("[Site \"smartchess\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString("[Round \"-\"]\n")
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(nameOr(g.White, "White"))))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(nameOr(g.Black, "Black"))))
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n", result))
	if m := strings.TrimSpace(g.Method); m != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(m))))
	}
	start := startFEN(g.Entries)
	if start != "" && start != board.StartFEN {
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", start))
	}
	b.WriteString("\n")

	moveNo, i := 1, 0
	sans := SANs(g.Entries)
	if pos, err := board.ParseFEN(start); err == nil {
		moveNo = pos.Fullmove
		if pos.Turn == board.Black && len(sans) > 0 {
			b.WriteString(fmt.Sprintf("%d... %s ", moveNo, strings.TrimSpace(sans[0])))
			moveNo, i = moveNo+1, 1
		}
	}
	for ; i < len(sans); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", moveNo, strings.TrimSpace(sans[i])))
		if i+1 < len(sans) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(sans[i+1]))
		}
		b.WriteString(" ")
		moveNo++
	}
	b.WriteString(result)
	return b.String()
}

// startFEN is the position recorded by the start entry, or "" without one.
func startFEN(entries []Entry) string {
	for _, e := range entries {
		if e.Kind == KindStart {
			return e.FEN
		}
	}
	return ""
}

func nameOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
