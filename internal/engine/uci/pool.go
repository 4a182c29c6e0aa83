package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
)

// SpawnFunc starts a ready session for opt.
type SpawnFunc func(ctx context.Context, opt Options) (*Session, error)

type PoolConfig struct {
	BinaryPath string
	// Capacity bounds live sessions per option set.
	Capacity int
	// Spawn overrides process creation; tests attach in-memory engines here.
	Spawn SpawnFunc
}

// Pool keeps warm engine sessions grouped by their option set.
type Pool struct {
	spawn    SpawnFunc
	capacity int

	mu       sync.Mutex
	buckets  map[Options]*sessionBucket
	sessions map[*Session]*sessionBucket
}

var errBucketAtCapacity = errors.New("session bucket at capacity")

func NewPool(cfg PoolConfig) (*Pool, error) {
	spawn := cfg.Spawn
	if spawn == nil {
		if cfg.BinaryPath == "" {
			return nil, fmt.Errorf("engine binary path required")
		}
		if _, err := os.Stat(cfg.BinaryPath); err != nil {
			return nil, fmt.Errorf("engine binary check: %w", err)
		}
		path := cfg.BinaryPath
		spawn = func(ctx context.Context, opt Options) (*Session, error) {
			return NewSession(ctx, path, opt)
		}
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		// the board needs one opponent search and one hint at most
		capacity = 2
	}
	return &Pool{
		spawn:    spawn,
		capacity: capacity,
		buckets:  make(map[Options]*sessionBucket),
		sessions: make(map[*Session]*sessionBucket),
	}, nil
}

func (p *Pool) Acquire(ctx context.Context, opt Options) (*Session, error) {
	bucket := p.getBucket(opt)
	for {
		select {
		case session := <-bucket.idle:
			if s, ok := p.revive(ctx, session, bucket); ok {
				return s, nil
			}
			continue
		default:
		}

		session, err := bucket.create(ctx, p.spawn)
		if err == nil {
			p.track(session, bucket)
			return session, nil
		}
		if !errors.Is(err, errBucketAtCapacity) {
			return nil, err
		}

		select {
		case session := <-bucket.idle:
			if s, ok := p.revive(ctx, session, bucket); ok {
				return s, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) revive(ctx context.Context, session *Session, bucket *sessionBucket) (*Session, bool) {
	if session == nil {
		return nil, false
	}
	if err := session.EnsureReady(ctx); err != nil {
		bucket.discard(session)
		return nil, false
	}
	p.track(session, bucket)
	return session, true
}

// Release returns a session; a non-nil err discards it instead.
func (p *Pool) Release(session *Session, err error) {
	if session == nil {
		return
	}
	p.mu.Lock()
	bucket, ok := p.sessions[session]
	delete(p.sessions, session)
	p.mu.Unlock()
	if !ok {
		_ = session.Close()
		return
	}
	if err != nil || !bucket.put(session) {
		bucket.discard(session)
	}
}

func (p *Pool) Close() error {
	p.mu.Lock()
	buckets := make([]*sessionBucket, 0, len(p.buckets))
	for _, b := range p.buckets {
		buckets = append(buckets, b)
	}
	p.sessions = make(map[*Session]*sessionBucket)
	p.mu.Unlock()

	var errs []error
	for _, bucket := range buckets {
		errs = append(errs, bucket.drain()...)
	}
	return errors.Join(errs...)
}

func (p *Pool) track(session *Session, bucket *sessionBucket) {
	p.mu.Lock()
	p.sessions[session] = bucket
	p.mu.Unlock()
}

func (p *Pool) getBucket(opt Options) *sessionBucket {
	p.mu.Lock()
	defer p.mu.Unlock()
	bucket, ok := p.buckets[opt]
	if !ok {
		bucket = &sessionBucket{opt: opt, capacity: p.capacity, idle: make(chan *Session, p.capacity)}
		p.buckets[opt] = bucket
	}
	return bucket
}

type sessionBucket struct {
	opt      Options
	capacity int

	mu    sync.Mutex
	total int
	idle  chan *Session
}

func (b *sessionBucket) create(ctx context.Context, spawn SpawnFunc) (*Session, error) {
	b.mu.Lock()
	if b.total >= b.capacity {
		b.mu.Unlock()
		return nil, errBucketAtCapacity
	}
	b.total++
	b.mu.Unlock()

	session, err := spawn(ctx, b.opt)
	if err != nil {
		b.decrement()
		return nil, err
	}
	return session, nil
}

func (b *sessionBucket) put(session *Session) bool {
	select {
	case b.idle <- session:
		return true
	default:
		return false
	}
}

func (b *sessionBucket) discard(session *Session) {
	_ = session.Close()
	b.decrement()
}

func (b *sessionBucket) drain() []error {
	var errs []error
	for {
		select {
		case session := <-b.idle:
			if session == nil {
				continue
			}
			if err := session.Close(); err != nil {
				errs = append(errs, err)
			}
			b.decrement()
		default:
			return errs
		}
	}
}

func (b *sessionBucket) decrement() {
	b.mu.Lock()
	if b.total > 0 {
		b.total--
	}
	b.mu.Unlock()
}
