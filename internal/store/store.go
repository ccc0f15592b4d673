// Package store owns every persisted entity of the helper runtime: memory,
// tasks, the tool-call log, conversations, config, thoughts, knowledge with
// its vector side index, and the survival ledger. All other components see
// rows only through this package.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Wick-Lim/helper/internal/events"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Config configures the store.
type Config struct {
	// Path is the main database file. Empty means in-memory.
	Path string `yaml:"path"`

	// VectorPath is the file backing the knowledge vector side index.
	// Empty disables vector search (searches return no results).
	VectorPath string `yaml:"vector_path"`

	// Dimension is the embedding dimension enforced on vector writes.
	Dimension int `yaml:"dimension"`

	// MemoryCap bounds the memory table; pruning removes the least
	// important rows beyond it.
	MemoryCap int `yaml:"memory_cap"`

	// KnowledgeCap bounds the knowledge table.
	KnowledgeCap int `yaml:"knowledge_cap"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Path:         "helper.db",
		VectorPath:   "helper-vectors.db",
		Dimension:    384,
		MemoryCap:    1000,
		KnowledgeCap: 10000,
	}
}

// Store is the sole owner of persisted state. A single write mutex
// serializes writers; reads see the last completed write.
type Store struct {
	db     *sql.DB
	vec    *sql.DB // nil when the vector index is absent
	cfg    Config
	logger *slog.Logger
	bus    *events.Bus // optional; publishes entity updates after commit

	writeMu sync.Mutex
	closed  bool
	mu      sync.RWMutex // guards closed
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBus injects the event bus the store publishes entity updates to.
// The bus is a plain value; the store never imports a surface.
func WithBus(bus *events.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// Open opens (creating if necessary) the store at cfg.Path and its vector
// side index at cfg.VectorPath.
func Open(cfg Config, opts ...Option) (*Store, error) {
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultConfig().Dimension
	}
	if cfg.MemoryCap <= 0 {
		cfg.MemoryCap = DefaultConfig().MemoryCap
	}
	if cfg.KnowledgeCap <= 0 {
		cfg.KnowledgeCap = DefaultConfig().KnowledgeCap
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps the write path serialized at the driver
	// level as well; the write mutex serializes at ours.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure database: %w", err)
		}
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VectorPath != "" {
		vec, err := sql.Open("sqlite", cfg.VectorPath)
		if err != nil {
			s.logger.Warn("vector index unavailable, vector search disabled", "error", err)
		} else {
			vec.SetMaxOpenConns(1)
			if err := migrateVectors(vec); err != nil {
				s.logger.Warn("vector index migration failed, vector search disabled", "error", err)
				vec.Close()
			} else {
				s.vec = vec
			}
		}
	}

	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'general',
			importance INTEGER NOT NULL DEFAULT 5,
			access_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			description TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'running',
			result TEXT NOT NULL DEFAULT '',
			iterations INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_session ON tasks(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS tool_calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL REFERENCES tasks(id),
			tool_name TEXT NOT NULL,
			input_json TEXT NOT NULL,
			output TEXT NOT NULL,
			success INTEGER NOT NULL,
			execution_time_ms INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_calls_task ON tool_calls(task_id)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id, id)`,
		`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS thoughts (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT 'reflection',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS knowledge (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			importance INTEGER NOT NULL DEFAULT 5,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS survival_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			amount REAL NOT NULL,
			reason TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func migrateVectors(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS knowledge_vectors (
		id TEXT PRIMARY KEY,
		embedding BLOB NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("migrate vectors: %w", err)
	}
	return nil
}

// HasVectorIndex reports whether the vector side index is available.
func (s *Store) HasVectorIndex() bool {
	return s.vec != nil
}

// WithTransaction runs fn in a single atomic unit against the main
// database. Any error rolls the transaction back.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// exec serializes a write against the main database.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.ExecContext(ctx, query, args...)
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// publish forwards an entity update to the bus when one is attached.
func (s *Store) publish(stream events.Stream, msgType string, payload any) {
	if s.bus != nil {
		s.bus.Publish(stream, msgType, payload)
	}
}

// Close checkpoints and releases both database handles.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("wal checkpoint failed on close", "error", err)
	}
	var firstErr error
	if err := s.db.Close(); err != nil {
		firstErr = err
	}
	if s.vec != nil {
		if err := s.vec.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
