// Package audit persists per-request redaction outcomes to PostgreSQL. Rows
// carry category counts and timings only; there is no column for document
// text, cleaned text, or token originals, by design.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Config contains audit store configuration.
type Config struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// Store handles audit event persistence.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS redaction_events (
	id          BIGSERIAL PRIMARY KEY,
	request_id  TEXT        NOT NULL,
	kind        TEXT        NOT NULL,
	findings    JSONB       NOT NULL DEFAULT '{}',
	gap_count   INTEGER     NOT NULL DEFAULT 0,
	cache_hit   BOOLEAN     NOT NULL DEFAULT FALSE,
	duration_ms BIGINT      NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// NewStore connects to PostgreSQL and ensures the events table exists.
func NewStore(cfg *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s := &Store{db: db, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to ensure audit schema: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return s, nil
}

// Record inserts one redaction event.
func (s *Store) Record(ctx context.Context, e *Event) error {
	const query = `
		INSERT INTO redaction_events (request_id, kind, findings, gap_count, cache_hit, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		e.RequestID, e.Kind, e.Findings, e.GapCount, e.CacheHit, e.DurationMS,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// Recent returns the most recent events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	const query = `
		SELECT id, request_id, kind, findings, gap_count, cache_hit, duration_ms, created_at
		FROM redaction_events
		ORDER BY created_at DESC
		LIMIT $1`

	var events []Event
	if err := s.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	return events, nil
}

// Totals aggregates event counts per kind since the given time.
func (s *Store) Totals(ctx context.Context, since time.Time) (map[string]int64, error) {
	const query = `
		SELECT kind, COUNT(*) AS n
		FROM redaction_events
		WHERE created_at >= $1
		GROUP BY kind`

	rows, err := s.db.QueryxContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit events: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		totals[kind] = n
	}
	return totals, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks credentials in a connection URL for logging.
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at == -1 {
		return url
	}
	scheme := strings.Index(url, "://")
	if scheme == -1 || scheme+3 > at {
		return url
	}
	return url[:scheme+3] + "***" + url[at:]
}
