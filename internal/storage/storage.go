// Package storage provides persistent swap storage using SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage persists atomic swaps for the bot.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "swaps.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Tracked atomic swaps. Normalized columns serve queries; the
	-- document column holds the full swap JSON for exact reloads.
	CREATE TABLE IF NOT EXISTS atomic_swaps (
		swap_id TEXT PRIMARY KEY,
		lock_txid TEXT NOT NULL,
		redeem_txid TEXT,
		refund_txid TEXT,
		state TEXT NOT NULL,
		btc_amount TEXT NOT NULL,
		xmr_amount TEXT,
		exchange_rate TEXT,
		timelock INTEGER NOT NULL DEFAULT 0,
		detected_at INTEGER NOT NULL,
		last_updated INTEGER NOT NULL,
		notification_sent TEXT,
		document TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_atomic_swaps_lock_txid ON atomic_swaps(lock_txid);
	CREATE INDEX IF NOT EXISTS idx_atomic_swaps_state ON atomic_swaps(state);
	CREATE INDEX IF NOT EXISTS idx_atomic_swaps_last_updated ON atomic_swaps(last_updated);
	`

	_, err := s.db.Exec(schema)
	return err
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
