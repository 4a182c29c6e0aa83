package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Play modes.
const (
	ModeLocal    = "local"
	ModeComputer = "computer"
	ModeRemote   = "remote"
	ModePuzzle   = "puzzle"
)

type Config struct {
	Mode      string `yaml:"mode"`
	LocalSide string `yaml:"local_side"`
	Simulate  bool   `yaml:"simulate"`

	// MessagesDir holds optional *.yaml files overriding the built-in messages.
	MessagesDir string `yaml:"messages_dir"`

	Board  BoardConfig  `yaml:"board"`
	Serial SerialConfig `yaml:"serial"`
	Engine EngineConfig `yaml:"engine"`
	Remote RemoteConfig `yaml:"remote"`
	Puzzle PuzzleConfig `yaml:"puzzle"`
	Store  StoreConfig  `yaml:"store"`
	Status StatusConfig `yaml:"status"`
	Log    LogConfig    `yaml:"log"`
}

type BoardConfig struct {
	// SettleWindow is how long the sensors must stay quiet before an action is classified.
	SettleWindow time.Duration `yaml:"settle_window"`
	// Debounce drops per-square flicker shorter than this.
	Debounce       time.Duration `yaml:"debounce"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	OutboxAttempts int           `yaml:"outbox_attempts"`
}

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type EngineConfig struct {
	Path           string `yaml:"path"`
	Level          int    `yaml:"level"`
	Threads        int    `yaml:"threads"`
	HashMB         int    `yaml:"hash_mb"`
	PoolSize       int    `yaml:"pool_size"`
	HintMoveTimeMS int    `yaml:"hint_move_time_ms"`
	BookPath       string `yaml:"book_path"`
}

type RemoteConfig struct {
	BaseURL      string `yaml:"base_url"`
	StreamURL    string `yaml:"stream_url"`
	Token        string `yaml:"token"`
	Username     string `yaml:"username"`
	MaxReconnect int    `yaml:"max_reconnect"`
}

// PuzzleConfig selects where puzzle mode gets its puzzle. File holds a saved
// daily-puzzle reply; without it the puzzle is fetched from Remote.BaseURL.
type PuzzleConfig struct {
	File string `yaml:"file"`
}

type StoreConfig struct {
	RedisURL    string        `yaml:"redis_url"`
	RedisTTL    time.Duration `yaml:"redis_ttl"`
	JournalPath string        `yaml:"journal_path"`
	DatabaseURL string        `yaml:"database_url"`
}

type StatusConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

func Default() *Config {
	return &Config{
		Mode:      ModeComputer,
		LocalSide: "white",
		Board: BoardConfig{
			SettleWindow:   1200 * time.Millisecond,
			Debounce:       60 * time.Millisecond,
			ConfirmTimeout: 30 * time.Second,
			TickInterval:   50 * time.Millisecond,
			OutboxAttempts: 5,
		},
		Serial: SerialConfig{Port: "/dev/serial0", Baud: 115200},
		Engine: EngineConfig{Level: 3, Threads: 1, HashMB: 32, PoolSize: 2, HintMoveTimeMS: 2000},
		Remote: RemoteConfig{MaxReconnect: 5},
		Store:  StoreConfig{RedisTTL: 7 * 24 * time.Hour, JournalPath: "data/journal.db"},
		Log:    LogConfig{Level: "info", Format: "legacy", File: "logs/smartboard.log", Console: true},
	}
}

// Load reads the optional YAML file at path, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("SMARTBOARD_MODE", &cfg.Mode)
	str("SMARTBOARD_LOCAL_SIDE", &cfg.LocalSide)
	flag("SMARTBOARD_SIMULATE", &cfg.Simulate)
	str("SMARTBOARD_MESSAGES_DIR", &cfg.MessagesDir)
	dur("SMARTBOARD_SETTLE_WINDOW", &cfg.Board.SettleWindow)
	dur("SMARTBOARD_DEBOUNCE", &cfg.Board.Debounce)
	dur("SMARTBOARD_CONFIRM_TIMEOUT", &cfg.Board.ConfirmTimeout)
	num("SMARTBOARD_OUTBOX_ATTEMPTS", &cfg.Board.OutboxAttempts)

	str("SERIAL_PORT", &cfg.Serial.Port)
	num("SERIAL_BAUD", &cfg.Serial.Baud)

	str("STOCKFISH_PATH", &cfg.Engine.Path)
	num("ENGINE_LEVEL", &cfg.Engine.Level)
	num("ENGINE_THREADS", &cfg.Engine.Threads)
	num("ENGINE_HASH_MB", &cfg.Engine.HashMB)
	str("ENGINE_BOOK_PATH", &cfg.Engine.BookPath)

	str("REMOTE_BASE_URL", &cfg.Remote.BaseURL)
	str("REMOTE_STREAM_URL", &cfg.Remote.StreamURL)
	str("REMOTE_TOKEN", &cfg.Remote.Token)
	str("REMOTE_USERNAME", &cfg.Remote.Username)

	str("PUZZLE_FILE", &cfg.Puzzle.File)

	str("REDIS_URL", &cfg.Store.RedisURL)
	str("DATABASE_URL", &cfg.Store.DatabaseURL)
	str("JOURNAL_PATH", &cfg.Store.JournalPath)
	str("STATUS_LISTEN", &cfg.Status.Listen)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("LOG_FILE", &cfg.Log.File)
	flag("LOG_TO_CONSOLE", &cfg.Log.Console)

	return errors.Join(errs...)
}

// Validate checks required fields for the selected mode.
func (c *Config) Validate() error {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	switch c.Mode {
	case ModeLocal, ModeComputer, ModeRemote, ModePuzzle:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	switch strings.ToLower(strings.TrimSpace(c.LocalSide)) {
	case "white", "black", "w", "b":
	default:
		return fmt.Errorf("local_side must be white or black: %q", c.LocalSide)
	}
	if c.Board.SettleWindow <= 0 {
		return errors.New("board.settle_window must be positive")
	}
	if c.Board.Debounce < 0 || c.Board.Debounce >= c.Board.SettleWindow {
		return errors.New("board.debounce must be non-negative and shorter than the settle window")
	}
	if c.Board.ConfirmTimeout <= c.Board.SettleWindow {
		return errors.New("board.confirm_timeout must exceed the settle window")
	}
	if c.Board.TickInterval <= 0 {
		c.Board.TickInterval = 50 * time.Millisecond
	}
	if c.Board.OutboxAttempts <= 0 {
		return errors.New("board.outbox_attempts must be positive")
	}
	if !c.Simulate && strings.TrimSpace(c.Serial.Port) == "" {
		return errors.New("SERIAL_PORT is required")
	}
	if c.Mode == ModeComputer && strings.TrimSpace(c.Engine.Path) == "" {
		return errors.New("STOCKFISH_PATH is required in computer mode")
	}
	if c.Mode == ModeRemote {
		if strings.TrimSpace(c.Remote.BaseURL) == "" || strings.TrimSpace(c.Remote.StreamURL) == "" {
			return errors.New("REMOTE_BASE_URL and REMOTE_STREAM_URL are required in remote mode")
		}
		if strings.TrimSpace(c.Remote.Token) == "" {
			return errors.New("REMOTE_TOKEN is required in remote mode")
		}
	}
	if c.Mode == ModePuzzle && strings.TrimSpace(c.Puzzle.File) == "" && strings.TrimSpace(c.Remote.BaseURL) == "" {
		return errors.New("PUZZLE_FILE or REMOTE_BASE_URL is required in puzzle mode")
	}
	return nil
}
