package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/event-comb/app/database"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

var ErrAlreadyQueued = errors.New("source run already queued")

const taskTimeout = 15 * time.Minute

type Scheduler struct {
	registry    Registry
	sourceRepo  database.SourceStore
	runner      Runner
	interval    time.Duration
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface

	// sources with a queued or running sync task
	mu      sync.Mutex
	pending map[string]struct{}
}

func NewScheduler(registry Registry, sourceRepo database.SourceStore, runner Runner, interval time.Duration, workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if workerCount <= 0 {
		workerCount = 1
	}

	return &Scheduler{
		registry:    registry,
		sourceRepo:  sourceRepo,
		runner:      runner,
		interval:    interval,
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
		pending:     make(map[string]struct{}),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.syncConfigs()
		s.enqueueTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// EnqueueSync queues a run of the named source outside its schedule and
// returns the task ID.
func (s *Scheduler) EnqueueSync(name string) (string, error) {
	def, err := s.registry.Resolve(name)
	if err != nil {
		return "", err
	}

	task := NewSyncSourceTask(def.Name, TriggerManual, refreshInterval(def.Settings.RefreshInterval), s.runner, s.sourceRepo)
	if err := s.enqueueSync(task); err != nil {
		return "", err
	}
	return task.GetID(), nil
}

// syncConfigs registers every loaded definition before the first due check.
func (s *Scheduler) syncConfigs() {
	defs := s.registry.All()
	if len(defs) == 0 {
		slog.Debug("No source configurations found")
		return
	}

	slog.Debug("Processing source configurations", "count", len(defs))

	for _, def := range defs {
		task := NewSyncSourceConfigTask(def, TriggerStartup, s.sourceRepo)
		task.Start()
		if err := task.Execute(s.ctx); err != nil {
			slog.Warn("Failed to sync source configuration", "source", def.Name, "error", err)
		}
	}
}

func (s *Scheduler) enqueueTasks() {
	due, err := s.sourceRepo.Due(s.ctx, time.Now().UTC())
	if err != nil {
		slog.Error("Failed to list due sources", "error", err)
		return
	}
	if len(due) == 0 {
		slog.Debug("No sources due for a run")
		return
	}

	slog.Debug("Processing due sources", "count", len(due))

	for _, src := range due {
		def, err := s.registry.Resolve(src.Name)
		if err != nil {
			slog.Debug("Due source not runnable, skipping", "source", src.Name, "error", err)
			continue
		}

		task := NewSyncSourceTask(def.Name, TriggerSchedule, refreshInterval(def.Settings.RefreshInterval), s.runner, s.sourceRepo)
		if err := s.enqueueSync(task); err != nil {
			if errors.Is(err, ErrAlreadyQueued) {
				slog.Debug("Source run already queued", "source", def.Name)
				continue
			}
			slog.Warn("Failed to enqueue SyncSourceTask", "source", def.Name, "error", err)
		}
	}
}

func (s *Scheduler) enqueueSync(task TaskInterface) error {
	name := task.GetSourceName()

	s.mu.Lock()
	if _, ok := s.pending[name]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", name, ErrAlreadyQueued)
	}
	s.pending[name] = struct{}{}
	s.mu.Unlock()

	if err := s.EnqueueTask(task); err != nil {
		s.release(name)
		return err
	}
	return nil
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	delete(s.pending, name)
	s.mu.Unlock()
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		s.done(task)
		return
	}

	slog.Error("Worker task execution failed", append(task.LogAttrs(), "worker_id", workerID, "error", err)...)

	retryDelay, ok := task.NextAttempt(err)
	if !ok {
		slog.Error("Task failed after maximum attempts", append(task.LogAttrs(), "last_error", err)...)
		s.done(task)
		return
	}

	slog.Warn("Task retry scheduled", append(task.LogAttrs(), "delay", retryDelay.String())...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", task.LogAttrs()...)
			s.done(task)
		case <-time.After(retryDelay):
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", append(task.LogAttrs(), "error", retryErr)...)
				s.done(task)
			}
		}
	}()
}

func (s *Scheduler) done(task TaskInterface) {
	if task.GetType() == TaskTypeSyncSource {
		s.release(task.GetSourceName())
	}
}

func refreshInterval(seconds int) time.Duration {
	if seconds <= 0 {
		return time.Hour
	}
	return time.Duration(seconds) * time.Second
}
