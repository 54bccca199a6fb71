package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SourceRepository tracks registered sources and their run schedule
type SourceRepository struct {
	db  *DB
	now func() time.Time
}

func NewSourceRepository(db *DB) *SourceRepository {
	return &SourceRepository{db: db, now: time.Now}
}

// Upsert registers a source or refreshes its definition. Run timestamps are
// kept. Returns true when the URL changed.
func (r *SourceRepository) Upsert(ctx context.Context, name, url, strategy string, enabled bool, config string) (bool, error) {
	existing, err := r.Get(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("failed to check existing source: %w", err)
	}

	now := formatTime(r.now())
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sources (name, url, strategy, enabled, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			url = excluded.url,
			strategy = excluded.strategy,
			enabled = excluded.enabled,
			config = excluded.config,
			updated_at = excluded.updated_at
	`, name, url, strategy, enabled, config, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to upsert source: %w", err)
	}

	return existing != nil && existing.URL != url, nil
}

func (r *SourceRepository) Get(ctx context.Context, name string) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT name, url, strategy, enabled, config, last_run_at, next_run_at, created_at, updated_at
		FROM sources
		WHERE name = ?
	`, name)

	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return s, nil
}

func (r *SourceRepository) List(ctx context.Context) ([]Source, error) {
	return r.query(ctx, `
		SELECT name, url, strategy, enabled, config, last_run_at, next_run_at, created_at, updated_at
		FROM sources
		ORDER BY name
	`)
}

// Due returns enabled sources whose next run is unset or not after now.
func (r *SourceRepository) Due(ctx context.Context, now time.Time) ([]Source, error) {
	return r.query(ctx, `
		SELECT name, url, strategy, enabled, config, last_run_at, next_run_at, created_at, updated_at
		FROM sources
		WHERE enabled = 1
		  AND (next_run_at IS NULL OR next_run_at <= ?)
		ORDER BY COALESCE(next_run_at, '')
		LIMIT 50
	`, formatTime(now))
}

// MarkRun records a finished run and schedules the next one.
func (r *SourceRepository) MarkRun(ctx context.Context, name string, lastRun, nextRun time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET last_run_at = ?, next_run_at = ?, updated_at = ?
		WHERE name = ?
	`, formatTime(lastRun), formatTime(nextRun), formatTime(r.now()), name)
	if err != nil {
		return fmt.Errorf("failed to mark source run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("source %s: %w", name, ErrNotFound)
	}
	return nil
}

func (r *SourceRepository) query(ctx context.Context, query string, args ...any) ([]Source, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}
	return sources, nil
}

func scanSource(s scanner) (*Source, error) {
	var src Source
	var lastRun, nextRun *string
	var createdAt, updatedAt string
	err := s.Scan(&src.Name, &src.URL, &src.Strategy, &src.Enabled, &src.Config,
		&lastRun, &nextRun, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	src.LastRunAt = parseTimePtr(lastRun)
	src.NextRunAt = parseTimePtr(nextRun)
	src.CreatedAt = parseTime(createdAt)
	src.UpdatedAt = parseTime(updatedAt)
	return &src, nil
}
