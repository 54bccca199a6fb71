package api

import (
	"github.com/lysyi3m/event-comb/app/cache"
	"github.com/lysyi3m/event-comb/app/database"
	"github.com/lysyi3m/event-comb/app/source"
	"github.com/lysyi3m/event-comb/app/tasks"
)

type SourceRegistry interface {
	All() []*source.Definition
	Get(name string) (*source.Definition, error)
	Load(name string) (*source.Definition, error)
}

var _ SourceRegistry = (*source.Registry)(nil)

type Handler struct {
	registry   SourceRegistry
	sourceRepo database.SourceStore
	eventRepo  database.EventStore
	logRepo    database.SyncLogStore
	scheduler  tasks.TaskSchedulerInterface
	cache      cache.Cache
}
