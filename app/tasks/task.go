package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeSyncSource       TaskType = "sync_source"
	TaskTypeSyncSourceConfig TaskType = "sync_source_config"
)

// Trigger records why a source task was created.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
	TriggerReload   Trigger = "reload"
	TriggerStartup  Trigger = "startup"
)

const (
	// DefaultMaxAttempts bounds how often one unrecorded run is tried.
	DefaultMaxAttempts = 4
	baseRetryDelay     = time.Second
	maxRetryDelay      = 30 * time.Second
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetSourceName() string
	GetTrigger() Trigger
	// NextAttempt records a failed attempt and returns the delay before the
	// next one, or false when the attempt budget is spent.
	NextAttempt(err error) (time.Duration, bool)
	Start()
	GetDuration() time.Duration
	LogAttrs() []any
}

// Task is the envelope shared by source tasks: one source, one trigger and
// an attempt budget with capped exponential backoff.
type Task struct {
	ID          string
	Type        TaskType
	SourceName  string
	Trigger     Trigger
	Attempt     int
	MaxAttempts int
	QueuedAt    time.Time
	StartedAt   *time.Time
	LastError   error
}

func NewTask(taskType TaskType, sourceName string, trigger Trigger) Task {
	return Task{
		ID:          uuid.NewString(),
		Type:        taskType,
		SourceName:  sourceName,
		Trigger:     trigger,
		Attempt:     1,
		MaxAttempts: DefaultMaxAttempts,
		QueuedAt:    time.Now().UTC(),
	}
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetSourceName() string {
	return t.SourceName
}

func (t *Task) GetTrigger() Trigger {
	return t.Trigger
}

func (t *Task) NextAttempt(err error) (time.Duration, bool) {
	t.LastError = err
	if t.Attempt >= t.MaxAttempts {
		return 0, false
	}
	delay := baseRetryDelay << (t.Attempt - 1)
	if delay <= 0 || delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	t.Attempt++
	return delay, true
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

// LogAttrs identifies the task in log records.
func (t *Task) LogAttrs() []any {
	return []any{
		"type", string(t.Type),
		"id", t.ID,
		"source", t.SourceName,
		"trigger", string(t.Trigger),
		"attempt", t.Attempt,
		"max_attempts", t.MaxAttempts,
	}
}
