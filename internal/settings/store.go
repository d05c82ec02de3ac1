// Package settings persists the bridge's shared mutable state as a single
// JSON blob in SQLite, one row, overwritten whole on every mutation.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"chatbridge/internal/domain"

	_ "modernc.org/sqlite"
)

// Store owns the Settings aggregate for the lifetime of the process. All
// reads go through Snapshot and all mutations through Update, so the two
// bridge tasks never race on the maps behind it.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu      sync.Mutex
	current domain.Settings
}

func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: the store is the only writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bridge_config (
		id          INTEGER PRIMARY KEY CHECK (id = 1),
		data        TEXT NOT NULL,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) load(ctx context.Context) error {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM bridge_config WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		s.logger.Warn("no settings found in database, using defaults")
		s.current = emptySettings()
		return nil
	}
	if err != nil {
		return err
	}

	var st domain.Settings
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return fmt.Errorf("corrupt settings blob: %w", err)
	}
	if st.Users == nil {
		st.Users = make(map[string]domain.UserProfile)
	}
	s.current = st
	return nil
}

func emptySettings() domain.Settings {
	return domain.Settings{Users: make(map[string]domain.UserProfile)}
}

// Snapshot returns a deep copy of the current settings.
func (s *Store) Snapshot() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Update applies fn to a copy of the settings and persists the full blob.
// The watermark never moves backwards, whatever fn did to it.
func (s *Store) Update(ctx context.Context, fn func(*domain.Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	fn(&next)
	next.Watermark = domain.LaterTimestamp(s.current.Watermark, next.Watermark)

	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.current = next
	return nil
}

func (s *Store) persist(ctx context.Context, st domain.Settings) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bridge_config (id, data, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), time.Now(),
	)
	return err
}

// ImportJSON loads a legacy config.json blob and overwrites the stored
// settings with it. One-time migration helper for `chatbridge migrate`.
func (s *Store) ImportJSON(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}

	var st domain.Settings
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("cannot parse %s: %w", path, err)
	}
	if st.Users == nil {
		st.Users = make(map[string]domain.UserProfile)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(ctx, st); err != nil {
		return err
	}
	s.current = st
	s.logger.Info("imported legacy settings", "path", path, "users", len(st.Users))
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
