package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/smartchess/internal/engine/uci"
	"github.com/park285/smartchess/internal/obslog"
)

type Config struct {
	BinaryPath string
	Threads    int
	HashMB     int
	PoolSize   int
	Level      int
	// HintMoveTimeMillis bounds full-strength hint searches.
	HintMoveTimeMillis int
	// BookPath names an optional Polyglot book for the computer's opening moves.
	BookPath string
	Spawn    uci.SpawnFunc
}

// Engine plays the computer side and answers hint requests through a UCI pool.
type Engine struct {
	pool    *uci.Pool
	threads int
	hashMB  int
	hintMS  int
	book    *Book

	mu    sync.RWMutex
	level Level

	randMu sync.Mutex
	rand   *rand.Rand
}

func New(cfg Config) (*Engine, error) {
	lvl, err := LevelFor(cfg.Level)
	if err != nil {
		return nil, err
	}
	var book *Book
	if cfg.BookPath != "" {
		if book, err = OpenBook(cfg.BookPath); err != nil {
			return nil, err
		}
	}
	pool, err := uci.NewPool(uci.PoolConfig{BinaryPath: cfg.BinaryPath, Capacity: cfg.PoolSize, Spawn: cfg.Spawn})
	if err != nil {
		return nil, err
	}
	e := &Engine{
		pool:    pool,
		threads: max(cfg.Threads, 1),
		hashMB:  cfg.HashMB,
		hintMS:  cfg.HintMoveTimeMillis,
		book:    book,
		level:   lvl,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if e.hashMB <= 0 {
		e.hashMB = 32
	}
	if e.hintMS <= 0 {
		e.hintMS = 2000
	}
	return e, nil
}

func (e *Engine) Level() Level {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.level
}

func (e *Engine) SetLevel(n int) error {
	lvl, err := LevelFor(n)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.level = lvl
	e.mu.Unlock()
	return nil
}

// BestMove searches fen at full strength. It backs board hints.
func (e *Engine) BestMove(ctx context.Context, fen string) (string, error) {
	opt := uci.Options{Threads: e.threads, SkillLevel: 20, HashMB: e.hashMB, MultiPV: 1}
	resp, err := e.search(ctx, opt, uci.SearchRequest{FEN: fen, Limits: uci.Limits{MoveTimeMillis: e.hintMS}})
	if err != nil {
		return "", err
	}
	if resp.BestMove == "" {
		return "", fmt.Errorf("engine found no move for %q", fen)
	}
	return resp.BestMove, nil
}

// Reply picks the computer's move for the game given as start FEN plus UCI moves.
func (e *Engine) Reply(ctx context.Context, fen string, moves []string) (Candidate, error) {
	if mv, ok := e.bookReply(fen, moves); ok {
		return Candidate{Move: mv, Principal: []string{mv}}, nil
	}
	lvl := e.Level()
	opt := uci.Options{Threads: e.threads, SkillLevel: lvl.SkillLevel, HashMB: e.hashMB, MultiPV: lvl.MultiPV}
	started := time.Now()
	resp, err := e.search(ctx, opt, uci.SearchRequest{
		FEN:    fen,
		Moves:  moves,
		Limits: uci.Limits{Depth: lvl.DepthCap, MoveTimeMillis: lvl.MoveTimeMillis},
	})
	if err != nil {
		return Candidate{}, err
	}
	candidates := convertCandidates(resp.Candidates)
	if len(candidates) == 0 {
		if resp.BestMove == "" {
			return Candidate{}, fmt.Errorf("engine returned no candidates")
		}
		candidates = []Candidate{{Move: resp.BestMove, Principal: []string{resp.BestMove}}}
	}
	chosen, err := SelectCandidate(lvl, candidates, e.random())
	if err != nil {
		return Candidate{}, err
	}
	obslog.L().Info("engine_reply",
		zap.Int("level", lvl.Number),
		zap.String("move", chosen.Move),
		zap.String("best", resp.BestMove),
		zap.Int("eval_cp", chosen.EvalCP),
		zap.Duration("took", time.Since(started)),
	)
	return chosen, nil
}

func (e *Engine) bookReply(fen string, moves []string) (string, bool) {
	if e.book == nil || len(moves) >= bookMaxPly {
		return "", false
	}
	list, err := e.book.Moves(fen, moves)
	if err != nil {
		obslog.L().Warn("engine_book_failed", zap.Error(err))
		return "", false
	}
	if len(list) == 0 {
		return "", false
	}
	chosen := pickBookMove(list, e.random())
	obslog.L().Info("engine_book_move", zap.String("move", chosen.Move), zap.Uint16("weight", chosen.Weight))
	return chosen.Move, true
}

func (e *Engine) search(ctx context.Context, opt uci.Options, req uci.SearchRequest) (resp uci.SearchResponse, err error) {
	session, err := e.pool.Acquire(ctx, opt)
	if err != nil {
		return uci.SearchResponse{}, err
	}
	defer func() { e.pool.Release(session, err) }()

	if err = session.NewGame(ctx); err != nil {
		return uci.SearchResponse{}, err
	}
	return session.Search(ctx, req)
}

func convertCandidates(in []uci.Candidate) []Candidate {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		out = append(out, Candidate{Move: c.Move, EvalCP: c.EvalCP, Principal: append([]string(nil), c.Principal...)})
	}
	return out
}

func (e *Engine) random() *rand.Rand {
	e.randMu.Lock()
	seed := e.rand.Int63()
	e.randMu.Unlock()
	return rand.New(rand.NewSource(seed))
}

func (e *Engine) SetRandomSeed(seed int64) {
	e.randMu.Lock()
	e.rand = rand.New(rand.NewSource(seed))
	e.randMu.Unlock()
}

func (e *Engine) Close() error {
	if e == nil || e.pool == nil {
		return nil
	}
	return e.pool.Close()
}
