// Package store keeps per-day relay counters in SQLite. Message content is
// never written, only classification labels and outcomes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const dayLayout = "2006-01-02"

// StatRow is one aggregated counter.
type StatRow struct {
	Day      string // YYYY-MM-DD in UTC; empty for cross-day totals
	Category string
	Outcome  string
	Count    int64
	LastAt   time.Time
}

type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single writer; relay workers serialize through the pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger, now: time.Now}, nil
}

// RecordOutcome bumps today's counter for (category, outcome).
func (s *SQLiteStore) RecordOutcome(ctx context.Context, category, outcome string) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relay_stats (day, category, outcome, count, last_at)
		 VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT(day, category, outcome) DO UPDATE SET
		   count = count + 1,
		   last_at = excluded.last_at`,
		now.Format(dayLayout), category, outcome, now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record outcome %s/%s: %w", category, outcome, err)
	}
	return nil
}

// Totals sums counters per (category, outcome) for days on or after since.
func (s *SQLiteStore) Totals(ctx context.Context, since time.Time) ([]StatRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, outcome, SUM(count), MAX(last_at)
		 FROM relay_stats
		 WHERE day >= ?
		 GROUP BY category, outcome
		 ORDER BY category, outcome`,
		since.UTC().Format(dayLayout),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StatRow
	for rows.Next() {
		var r StatRow
		var last sql.NullInt64
		if err := rows.Scan(&r.Category, &r.Outcome, &r.Count, &last); err != nil {
			return nil, err
		}
		if last.Valid {
			r.LastAt = time.Unix(last.Int64, 0).UTC()
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Daily returns the per-day counters of the last n days, newest first.
func (s *SQLiteStore) Daily(ctx context.Context, days int) ([]StatRow, error) {
	if days <= 0 {
		days = 7
	}
	since := s.now().UTC().AddDate(0, 0, -(days - 1)).Format(dayLayout)
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, category, outcome, count
		 FROM relay_stats
		 WHERE day >= ?
		 ORDER BY day DESC, category, outcome`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StatRow
	for rows.Next() {
		var r StatRow
		if err := rows.Scan(&r.Day, &r.Category, &r.Outcome, &r.Count); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Prune deletes counters older than the retention window.
func (s *SQLiteStore) Prune(ctx context.Context, keepDays int) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -keepDays).Format(dayLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM relay_stats WHERE day < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned relay stats", "rows", n, "before", cutoff)
	}
	return n, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
