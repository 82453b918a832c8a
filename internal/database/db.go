// Package database provides the analysis history and threshold feedback store.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultPingTimeout is the default timeout for ping operations
	DefaultPingTimeout = 5 * time.Second
)

// Config holds database connection settings.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Connect opens a database by driver name ("sqlite3" or "postgres"),
// applies pool settings, and verifies connectivity.
func Connect(cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpenConns
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdleConns
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = DefaultConnMaxLifetime
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
	defer cancel()
	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	return db, nil
}

// Migrate creates the history and feedback tables when they do not exist.
// The DDL sticks to types both sqlite and postgres accept.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS analysis_history (
			id TEXT PRIMARY KEY,
			message_hash TEXT NOT NULL,
			crisis_level TEXT NOT NULL,
			adjusted_score REAL NOT NULL,
			agreement_ratio REAL NOT NULL,
			aggregation_mode TEXT NOT NULL,
			override_applied BOOLEAN NOT NULL,
			override_reason TEXT NOT NULL DEFAULT '',
			needs_review BOOLEAN NOT NULL,
			reviewed BOOLEAN NOT NULL DEFAULT FALSE,
			degraded BOOLEAN NOT NULL,
			pattern_hits INTEGER NOT NULL,
			processing_time_ms INTEGER NOT NULL,
			analyzed_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_history_level
			ON analysis_history (crisis_level)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_history_review
			ON analysis_history (needs_review, reviewed)`,
		`CREATE TABLE IF NOT EXISTS threshold_feedback (
			id TEXT PRIMARY KEY,
			analysis_id TEXT NOT NULL,
			aggregation_mode TEXT NOT NULL,
			assigned_level TEXT NOT NULL,
			corrected_level TEXT NOT NULL,
			adjusted_score REAL NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_threshold_feedback_mode
			ON threshold_feedback (aggregation_mode, assigned_level)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
