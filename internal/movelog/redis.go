package movelog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const currentKey = "smartchess:current"

func gameKey(id string) string { return "smartchess:moves:" + strings.TrimSpace(id) }

// Redis keeps each game as a list of JSON entries that expires ttl after the last append.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(redisURL string, ttl time.Duration) (*Redis, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for move log")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Redis{rdb: rdb, ttl: ttl}, nil
}

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

func (r *Redis) Append(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := gameKey(e.GameID)
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, raw)
		p.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Entries(ctx context.Context, gameID string) ([]Entry, error) {
	raws, err := r.rdb.LRange(ctx, gameKey(gameID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Redis) SetCurrent(ctx context.Context, gameID string) error {
	return r.rdb.Set(ctx, currentKey, gameID, r.ttl).Err()
}

func (r *Redis) Current(ctx context.Context) (string, error) {
	id, err := r.rdb.Get(ctx, currentKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoCurrentGame
	}
	return id, err
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
