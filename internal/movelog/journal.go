package movelog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var metaBucket = []byte("meta")

// Journal is a local bbolt file with one bucket per game, so a power cut does
// not lose the moves played so far.
type Journal struct {
	db *bolt.DB
}

func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create meta bucket: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

func gameBucket(id string) []byte { return []byte("game:" + id) }

func (j *Journal) Append(_ context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(gameBucket(e.GameID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

func (j *Journal) Entries(_ context.Context, gameID string) ([]Entry, error) {
	var out []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(gameBucket(gameID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	return out, nil
}

func (j *Journal) SetCurrent(_ context.Context, gameID string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put([]byte("current"), []byte(gameID))
	})
}

func (j *Journal) Current(context.Context) (string, error) {
	var id string
	err := j.db.View(func(tx *bolt.Tx) error {
		id = string(tx.Bucket(metaBucket).Get([]byte("current")))
		return nil
	})
	if err == nil && id == "" {
		err = ErrNoCurrentGame
	}
	return id, err
}
