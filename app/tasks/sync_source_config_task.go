package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/event-comb/app/database"
	"github.com/lysyi3m/event-comb/app/source"
)

type SyncSourceConfigTask struct {
	Task
	Definition *source.Definition
	sourceRepo database.SourceStore
}

func NewSyncSourceConfigTask(def *source.Definition, trigger Trigger, sourceRepo database.SourceStore) *SyncSourceConfigTask {
	return &SyncSourceConfigTask{
		Task:       NewTask(TaskTypeSyncSourceConfig, def.Name, trigger),
		Definition: def,
		sourceRepo: sourceRepo,
	}
}

func (t *SyncSourceConfigTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	snapshot, err := json.Marshal(t.Definition)
	if err != nil {
		return fmt.Errorf("failed to encode source definition: %w", err)
	}

	urlChanged, err := t.sourceRepo.Upsert(ctx,
		t.Definition.Name,
		t.Definition.URL,
		t.Definition.Strategy,
		t.Definition.Enabled,
		string(snapshot))
	if err != nil {
		slog.Error("Task failed", append(t.LogAttrs(), "error", err)...)
		return fmt.Errorf("failed to sync source config to database: %w", err)
	}

	if urlChanged {
		slog.Info("Source URL changed", "source", t.SourceName, "url", t.Definition.URL)
	}

	slog.Info("Task completed", append(t.LogAttrs(),
		"enabled", t.Definition.Enabled,
		"duration", t.GetDuration())...)

	return nil
}
