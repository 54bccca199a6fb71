package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/event-comb/app/database"
)

type SyncSourceTask struct {
	Task
	runner     Runner
	sourceRepo database.SourceStore
	interval   time.Duration
}

func NewSyncSourceTask(sourceName string, trigger Trigger, interval time.Duration, runner Runner, sourceRepo database.SourceStore) *SyncSourceTask {
	return &SyncSourceTask{
		Task:       NewTask(TaskTypeSyncSource, sourceName, trigger),
		runner:     runner,
		sourceRepo: sourceRepo,
		interval:   interval,
	}
}

// Execute runs the source once and schedules its next run. Run-level
// failures are recorded in the sync log and do not trigger a retry; only a
// run that could not be recorded is returned as an error.
func (t *SyncSourceTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	startedAt := time.Now().UTC()
	entry, err := t.runner.Run(ctx, t.SourceName)
	if entry == nil {
		if err == nil {
			err = fmt.Errorf("run produced no sync log")
		}
		return fmt.Errorf("failed to run source: %w", err)
	}

	slog.Info("Task completed", append(t.LogAttrs(),
		"status", entry.Status,
		"created", entry.Created,
		"updated", entry.Updated,
		"duration", t.GetDuration())...)

	nextRun := startedAt.Add(t.interval)
	if err := t.sourceRepo.MarkRun(context.WithoutCancel(ctx), t.SourceName, startedAt, nextRun); err != nil {
		slog.Warn("Failed to schedule next run", "source", t.SourceName, "error", err)
	} else {
		slog.Debug("Next run scheduled", "source", t.SourceName, "next_run_at", nextRun)
	}

	return nil
}
