package database

import (
	"context"
	"time"

	"github.com/lysyi3m/event-comb/app/dedup"
)

type EventStore interface {
	Upsert(ctx context.Context, records []Record) (BatchResult, error)
	Neighbours(ctx context.Context, date string) ([]dedup.Neighbour, error)
	Recent(ctx context.Context, source string, limit int) ([]StoredEvent, error)
}

type SourceStore interface {
	Upsert(ctx context.Context, name, url, strategy string, enabled bool, config string) (bool, error)
	Get(ctx context.Context, name string) (*Source, error)
	List(ctx context.Context) ([]Source, error)
	Due(ctx context.Context, now time.Time) ([]Source, error)
	MarkRun(ctx context.Context, name string, lastRun, nextRun time.Time) error
}

type SyncLogStore interface {
	Start(ctx context.Context, source string) (*SyncLog, error)
	Finish(ctx context.Context, entry *SyncLog) error
	Recent(ctx context.Context, source string, limit int) ([]SyncLog, error)
}

var (
	_ EventStore   = (*EventRepository)(nil)
	_ SourceStore  = (*SourceRepository)(nil)
	_ SyncLogStore = (*SyncLogRepository)(nil)
)
