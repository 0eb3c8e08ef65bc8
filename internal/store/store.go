package store

import (
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	ferrors "github.com/focusguild/focusbot/internal/errors"
)

// Store manages the SQLite database
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	mu     sync.RWMutex
}

// New opens (or creates) the SQLite database and runs migrations.
func New(dbPath string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ferrors.NewStoreError("open", false, err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, ferrors.NewStoreError("ping", true, err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	// Set PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, ferrors.NewStoreError("pragma", false, err)
		}
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().Msg("store initialized")
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// DB returns the underlying database connection (for testing)
func (s *Store) DB() *sql.DB {
	return s.db
}

// DateOf formats t as the quota/stats date key.
func DateOf(t time.Time) string {
	return t.Format("2006-01-02")
}

// wrapErr classifies a database error as a StoreError. SQLite reports
// lock contention in the error message; those failures are retryable.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	transient := strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
	return ferrors.NewStoreError(op, transient, err)
}
