package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SyncLogRepository records run lifecycles. Rows are created at run start
// and finalized once.
type SyncLogRepository struct {
	db  *DB
	now func() time.Time
}

func NewSyncLogRepository(db *DB) *SyncLogRepository {
	return &SyncLogRepository{db: db, now: time.Now}
}

// Start opens an in-progress entry for source.
func (r *SyncLogRepository) Start(ctx context.Context, source string) (*SyncLog, error) {
	entry := &SyncLog{
		Source:    source,
		Status:    SyncStatusInProgress,
		StartedAt: r.now().UTC(),
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_logs (source, status, started_at)
		VALUES (?, ?, ?)
	`, entry.Source, entry.Status, formatTime(entry.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to start sync log: %w", err)
	}

	entry.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read sync log id: %w", err)
	}
	return entry, nil
}

// Finish writes the final counts of entry. An entry that already left the
// in-progress state is not touched again.
func (r *SyncLogRepository) Finish(ctx context.Context, entry *SyncLog) error {
	finished := r.now().UTC()
	entry.FinishedAt = &finished
	entry.Duration = finished.Sub(entry.StartedAt)
	if entry.Status == "" || entry.Status == SyncStatusInProgress {
		entry.Status = SyncStatusSuccess
		if len(entry.Errors) > 0 && entry.Created+entry.Updated+entry.Skipped == 0 {
			entry.Status = SyncStatusError
		}
	}

	errs := entry.Errors
	if errs == nil {
		errs = []string{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to encode sync log errors: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_logs
		SET status = ?, processed = ?, created = ?, updated = ?, skipped = ?,
		    pages_discovered = ?, pages_processed = ?, errors = ?,
		    finished_at = ?, duration_ms = ?
		WHERE id = ? AND status = ?
	`, entry.Status, entry.Processed, entry.Created, entry.Updated, entry.Skipped,
		entry.PagesDiscovered, entry.PagesProcessed, string(errorsJSON),
		formatTime(finished), entry.Duration.Milliseconds(),
		entry.ID, SyncStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to finish sync log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sync log %d not in progress: %w", entry.ID, ErrNotFound)
	}
	return nil
}

func (r *SyncLogRepository) Get(ctx context.Context, id int64) (*SyncLog, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+syncLogColumns+` FROM sync_logs WHERE id = ?`, id)
	entry, err := scanSyncLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync log: %w", err)
	}
	return entry, nil
}

// Recent returns the latest entries for source, newest first.
func (r *SyncLogRepository) Recent(ctx context.Context, source string, limit int) ([]SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+syncLogColumns+`
		FROM sync_logs
		WHERE source = ?
		ORDER BY id DESC
		LIMIT ?
	`, source, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync logs: %w", err)
	}
	defer rows.Close()

	var entries []SyncLog
	for rows.Next() {
		entry, err := scanSyncLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log row: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync log rows: %w", err)
	}
	return entries, nil
}

const syncLogColumns = `id, source, status, processed, created, updated, skipped,
	pages_discovered, pages_processed, errors, started_at, finished_at, duration_ms`

func scanSyncLog(s scanner) (*SyncLog, error) {
	var entry SyncLog
	var errorsJSON, startedAt string
	var finishedAt *string
	var durationMs int64
	err := s.Scan(&entry.ID, &entry.Source, &entry.Status, &entry.Processed, &entry.Created,
		&entry.Updated, &entry.Skipped, &entry.PagesDiscovered, &entry.PagesProcessed,
		&errorsJSON, &startedAt, &finishedAt, &durationMs)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(errorsJSON), &entry.Errors); err != nil {
		entry.Errors = []string{errorsJSON}
	}
	entry.StartedAt = parseTime(startedAt)
	entry.FinishedAt = parseTimePtr(finishedAt)
	entry.Duration = time.Duration(durationMs) * time.Millisecond
	return &entry, nil
}
