package api

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/event-comb/app/cache"
	"github.com/lysyi3m/event-comb/app/database"
	"github.com/lysyi3m/event-comb/app/source"
	"github.com/lysyi3m/event-comb/app/tasks"
)

const maxListLimit = 200

func NewHandler(registry SourceRegistry, sourceRepo database.SourceStore, eventRepo database.EventStore,
	logRepo database.SyncLogStore, scheduler tasks.TaskSchedulerInterface, extractCache cache.Cache) *Handler {
	return &Handler{
		registry:   registry,
		sourceRepo: sourceRepo,
		eventRepo:  eventRepo,
		logRepo:    logRepo,
		scheduler:  scheduler,
		cache:      extractCache,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp":      time.Now().In(time.Local).Format(time.RFC3339),
		"loaded_sources": len(h.registry.All()),
	}

	if sources, err := h.sourceRepo.List(c.Request.Context()); err == nil {
		health["sources"] = len(sources)
	} else {
		slog.Error("Database error", "operation", "list_sources", "error", err)
		health["database"] = "unavailable"
	}

	if h.cache != nil {
		health["cache"] = h.cache.Health(c.Request.Context())
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListSources(c *gin.Context) {
	defs := h.registry.All()

	sources := make([]map[string]interface{}, 0, len(defs))
	for _, def := range defs {
		info := map[string]interface{}{
			"name":             def.Name,
			"url":              def.URL,
			"strategy":         def.Strategy,
			"preset":           def.Preset,
			"rate_class":       def.RateClass,
			"enabled":          def.Enabled,
			"refresh_interval": (time.Duration(def.Settings.RefreshInterval) * time.Second).String(),
			"filters":          len(def.Filters),
		}

		if stored, err := h.sourceRepo.Get(c.Request.Context(), def.Name); err == nil {
			info["last_run_at"] = stored.LastRunAt
			info["next_run_at"] = stored.NextRunAt
			info["updated_at"] = stored.UpdatedAt
		}

		sources = append(sources, info)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"sources": sources,
		"total":   len(sources),
	})
}

func (h *Handler) APIGetSourceLogs(c *gin.Context) {
	name := c.Param("name")
	if _, err := h.registry.Get(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source configuration not found"})
		return
	}

	entries, err := h.logRepo.Recent(c.Request.Context(), name, limitParam(c, 20))
	if err != nil {
		slog.Error("Database error", "operation", "get_sync_logs", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	logs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		logs = append(logs, map[string]interface{}{
			"id":               entry.ID,
			"status":           entry.Status,
			"processed":        entry.Processed,
			"created":          entry.Created,
			"updated":          entry.Updated,
			"skipped":          entry.Skipped,
			"pages_discovered": entry.PagesDiscovered,
			"pages_processed":  entry.PagesProcessed,
			"errors":           entry.Errors,
			"started_at":       entry.StartedAt,
			"finished_at":      entry.FinishedAt,
			"duration":         entry.Duration.String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"source": name,
		"logs":   logs,
		"total":  len(logs),
	})
}

func (h *Handler) APISyncSource(c *gin.Context) {
	name := c.Param("name")

	taskID, err := h.scheduler.EnqueueSync(name)
	if err != nil {
		switch {
		case errors.Is(err, source.ErrSourceNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Source configuration not found"})
		case errors.Is(err, source.ErrSourceDisabled):
			c.JSON(http.StatusConflict, gin.H{"error": "Source is disabled"})
		case errors.Is(err, tasks.ErrAlreadyQueued):
			c.JSON(http.StatusConflict, gin.H{"error": "Source run already queued"})
		default:
			slog.Error("Error enqueueing sync task", "source", name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to enqueue sync task",
				"details": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Sync task enqueued",
		"task": gin.H{
			"id":   taskID,
			"type": tasks.TaskTypeSyncSource,
		},
	})
}

func (h *Handler) APIReloadSource(c *gin.Context) {
	name := c.Param("name")

	def, err := h.registry.Load(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Source configuration not found"})
			return
		}
		slog.Error("Error reloading configuration", "source", name, "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Failed to reload configuration",
			"details": err.Error(),
		})
		return
	}

	syncTask := tasks.NewSyncSourceConfigTask(def, tasks.TriggerReload, h.sourceRepo)
	if err := h.scheduler.EnqueueTask(syncTask); err != nil {
		slog.Error("Error enqueueing sync task", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue sync task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Configuration reloaded",
		"source": gin.H{
			"name":     def.Name,
			"url":      def.URL,
			"strategy": def.Strategy,
			"enabled":  def.Enabled,
		},
		"task": gin.H{
			"id":   syncTask.ID,
			"type": syncTask.Type,
		},
	})
}

func (h *Handler) APIListEvents(c *gin.Context) {
	name := c.Query("source")

	events, err := h.eventRepo.Recent(c.Request.Context(), name, limitParam(c, 50))
	if err != nil {
		slog.Error("Database error", "operation", "get_events", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	out := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		out = append(out, map[string]interface{}{
			"id":          ev.ID,
			"source":      ev.Source,
			"local_id":    ev.LocalID,
			"title":       ev.Title,
			"description": ev.Description,
			"date":        ev.Date,
			"end_date":    ev.EndDate,
			"city":        ev.City,
			"venue":       ev.Venue,
			"category":    ev.Category,
			"subcategory": ev.Subcategory,
			"url":         ev.URL,
			"image":       ev.Image,
			"attendance":  ev.Attendance,
			"updated_at":  ev.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"events": out,
		"total":  len(out),
	})
}

func limitParam(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
