package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/event-comb/app/dates"
	"github.com/lysyi3m/event-comb/app/dedup"
	"github.com/lysyi3m/event-comb/app/venue"
)

// EventRepository reconciles normalized events with stored rows keyed by
// (source, local_id).
type EventRepository struct {
	db       *DB
	capacity venue.Lookup
	now      func() time.Time
}

func NewEventRepository(db *DB, capacity venue.Lookup) *EventRepository {
	return &EventRepository{db: db, capacity: capacity, now: time.Now}
}

const eventColumns = `id, source, local_id, title, description, date, end_date, city, venue,
	category, subcategory, url, image, attendance, embedding, created_at, updated_at`

// Upsert processes records in sequential batches of at most MaxBatchSize.
// Each record gets its own transaction; a failing record does not affect
// its siblings. Only context cancellation stops the loop early.
func (r *EventRepository) Upsert(ctx context.Context, records []Record) (BatchResult, error) {
	var total BatchResult
	for start := 0; start < len(records); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(records))
		batch, err := r.UpsertBatch(ctx, records[start:end])
		total.Inserted += batch.Inserted
		total.Updated += batch.Updated
		total.Skipped += batch.Skipped
		total.Failed += batch.Failed
		total.Results = append(total.Results, batch.Results...)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// UpsertBatch processes one batch. Batches over MaxBatchSize are rejected.
func (r *EventRepository) UpsertBatch(ctx context.Context, records []Record) (BatchResult, error) {
	var result BatchResult
	if len(records) > MaxBatchSize {
		return result, fmt.Errorf("batch of %d exceeds limit of %d", len(records), MaxBatchSize)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		res := r.upsertOne(ctx, rec)
		if res.Err != nil {
			slog.Warn("Event upsert failed", "source", res.Source, "local_id", res.LocalID, "error", res.Err)
		}
		result.add(res)
	}

	return result, nil
}

func (r *EventRepository) upsertOne(ctx context.Context, rec Record) RecordResult {
	ev := rec.Event
	res := RecordResult{Source: ev.Source, LocalID: ev.LocalID}

	if err := validate(rec); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("event %s/%s: %w", ev.Source, ev.LocalID, err)
		return res
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("failed to begin transaction: %w", err)
		return res
	}
	defer func() { _ = tx.Rollback() }()

	stored, err := getEvent(ctx, tx, ev.Source, ev.LocalID)
	switch {
	case errors.Is(err, ErrNotFound):
		if err := r.insert(ctx, tx, rec); err != nil {
			res.Outcome = OutcomeFailed
			res.Err = err
			return res
		}
		res.Outcome = OutcomeInserted
	case err != nil:
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	default:
		changes := Diff(stored, rec)
		if len(changes) == 0 {
			res.Outcome = OutcomeSkipped
			return res
		}
		var embedding []float32
		if len(rec.Embedding) > 0 && !slices.Equal(stored.Embedding, rec.Embedding) {
			embedding = rec.Embedding
		}
		if err := r.update(ctx, tx, stored.ID, changes, embedding); err != nil {
			res.Outcome = OutcomeFailed
			res.Err = err
			return res
		}
		res.Outcome = OutcomeUpdated
		res.Changed = changes.Columns()
	}

	if err := tx.Commit(); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("failed to commit event %s/%s: %w", ev.Source, ev.LocalID, err)
	}
	return res
}

func validate(rec Record) error {
	ev := rec.Event
	switch {
	case ev.Source == "":
		return errors.New("source is required")
	case ev.LocalID == "":
		return errors.New("local id is required")
	case strings.TrimSpace(ev.Title) == "":
		return errors.New("title is required")
	}
	if _, err := time.Parse(dates.Layout, dates.Truncate(ev.Date)); err != nil {
		return fmt.Errorf("invalid date %q", ev.Date)
	}
	return nil
}

func (r *EventRepository) insert(ctx context.Context, tx *sql.Tx, rec Record) error {
	ev := rec.Event
	attendance := ev.Attendance
	if attendance <= 0 && r.capacity != nil {
		if n, ok := r.capacity.Estimate(ctx, ev.Venue, ev.Category); ok {
			attendance = n
		}
	}

	now := formatTime(r.now())
	_, err := tx.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), ev.Source, ev.LocalID, ev.Title, ev.Description,
		dates.Truncate(ev.Date), dates.Truncate(ev.EndDate), ev.City, ev.Venue,
		ev.Category, ev.Subcategory, ev.URL, ev.Image, attendance,
		encodeVector(rec.Embedding), now, now)
	if err != nil {
		return fmt.Errorf("failed to insert event %s/%s: %w", ev.Source, ev.LocalID, err)
	}
	return nil
}

func (r *EventRepository) update(ctx context.Context, tx *sql.Tx, id string, changes Changes, embedding []float32) error {
	sets := make([]string, 0, len(changes)+2)
	args := make([]any, 0, len(changes)+3)
	for _, c := range changes {
		sets = append(sets, c.Column+" = ?")
		args = append(args, c.Value)
	}
	if len(embedding) > 0 {
		sets = append(sets, "embedding = ?")
		args = append(args, encodeVector(embedding))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(r.now()), id)

	_, err := tx.ExecContext(ctx, `UPDATE events SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update event %s: %w", id, err)
	}
	return nil
}

// Get returns the stored event for (source, localID).
func (r *EventRepository) Get(ctx context.Context, source, localID string) (*StoredEvent, error) {
	return getEvent(ctx, r.db, source, localID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getEvent(ctx context.Context, q querier, source, localID string) (*StoredEvent, error) {
	row := q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE source = ? AND local_id = ?`, source, localID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s/%s: %w", source, localID, err)
	}
	return ev, nil
}

// Neighbours returns stored events on date that carry an embedding.
func (r *EventRepository) Neighbours(ctx context.Context, date string) ([]dedup.Neighbour, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT source, local_id, title, date, venue, embedding
		FROM events
		WHERE substr(date, 1, 10) = ? AND embedding IS NOT NULL
	`, dates.Truncate(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query neighbours: %w", err)
	}
	defer rows.Close()

	var out []dedup.Neighbour
	for rows.Next() {
		var n dedup.Neighbour
		var blob []byte
		if err := rows.Scan(&n.Source, &n.LocalID, &n.Title, &n.Date, &n.Venue, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan neighbour row: %w", err)
		}
		n.Date = dates.Truncate(n.Date)
		n.Embedding = decodeVector(blob)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating neighbour rows: %w", err)
	}
	return out, nil
}

// Recent returns the most recently updated events, optionally for one source.
func (r *EventRepository) Recent(ctx context.Context, source string, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + eventColumns + ` FROM events`
	args := []any{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

func (r *EventRepository) Count(ctx context.Context, source string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE source = ?`, source).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*StoredEvent, error) {
	var ev StoredEvent
	var blob []byte
	var createdAt, updatedAt string
	err := s.Scan(&ev.ID, &ev.Source, &ev.LocalID, &ev.Title, &ev.Description, &ev.Date, &ev.EndDate,
		&ev.City, &ev.Venue, &ev.Category, &ev.Subcategory, &ev.URL, &ev.Image, &ev.Attendance,
		&blob, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	ev.Embedding = decodeVector(blob)
	ev.CreatedAt = parseTime(createdAt)
	ev.UpdatedAt = parseTime(updatedAt)
	return &ev, nil
}
