package database

import (
	"time"
)

// StoredEvent represents an events row
type StoredEvent struct {
	ID          string // Database UUID
	Source      string
	LocalID     string // Source-local identifier, unique per source
	Title       string
	Description string
	Date        string // ISO calendar date
	EndDate     string
	City        string
	Venue       string
	Category    string
	Subcategory string
	URL         string
	Image       string
	Attendance  int
	Embedding   []float32
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Source represents a registered source row
type Source struct {
	Name      string
	URL       string
	Strategy  string
	Enabled   bool
	Config    string // JSON snapshot of the YAML definition
	LastRunAt *time.Time
	NextRunAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	SyncStatusInProgress = "in_progress"
	SyncStatusSuccess    = "success"
	SyncStatusError      = "error"
)

// SyncLog represents one ingestion run
type SyncLog struct {
	ID              int64
	Source          string
	Status          string
	Processed       int
	Created         int
	Updated         int
	Skipped         int
	PagesDiscovered int
	PagesProcessed  int
	Errors          []string
	StartedAt       time.Time
	FinishedAt      *time.Time
	Duration        time.Duration
}
