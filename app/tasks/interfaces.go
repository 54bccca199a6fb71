package tasks

import (
	"context"

	"github.com/lysyi3m/event-comb/app/database"
	"github.com/lysyi3m/event-comb/app/source"
)

// TaskSchedulerInterface is the scheduler surface used by main and the API.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	EnqueueSync(name string) (string, error)
}

// Runner ingests one source and returns its finalized sync log entry.
// A nil entry means the run could not be recorded at all.
type Runner interface {
	Run(ctx context.Context, name string) (*database.SyncLog, error)
}

// Registry is the loaded set of source definitions.
type Registry interface {
	All() []*source.Definition
	Resolve(name string) (*source.Definition, error)
}
