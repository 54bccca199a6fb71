// Package source loads source definitions from YAML files and derives the
// effective crawl configuration of a run.
package source

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/event-comb/app/urlnorm"
)

var (
	ErrSourceNotFound = errors.New("source not found")
	ErrSourceDisabled = errors.New("source disabled")
)

type Registry struct {
	sourcesDir string
	cache      map[string]*Definition
	mu         sync.RWMutex
}

func NewRegistry(sourcesDir string) *Registry {
	return &Registry{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Definition),
	}
}

// Run loads every *.yml file in the sources directory.
func (r *Registry) Run() error {
	if _, err := os.Stat(r.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(r.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		def, err := r.Load(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source loaded", "source", name, "strategy", def.Strategy, "enabled", def.Enabled)
	}

	return nil
}

func (r *Registry) Load(name string) (*Definition, error) {
	file := filepath.Join(r.sourcesDir, name+".yml")
	def, err := parseDefinition(file)
	if err != nil {
		return nil, err
	}
	def.Name = name

	if err := validateDefinition(def); err != nil {
		return nil, fmt.Errorf("invalid source %s: %w", file, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[name] = def

	return def, nil
}

// Put registers a definition without a backing file.
func (r *Registry) Put(def *Definition) error {
	applyDefaults(def)
	if err := validateDefinition(def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[def.Name] = def
	return nil
}

func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.cache[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	return def, nil
}

// Resolve returns an enabled definition.
func (r *Registry) Resolve(name string) (*Definition, error) {
	def, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if !def.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrSourceDisabled, name)
	}
	return def, nil
}

func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(r.cache))
	for _, def := range r.cache {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *Registry) Enabled() []*Definition {
	var defs []*Definition
	for _, def := range r.All() {
		if def.Enabled {
			defs = append(defs, def)
		}
	}
	return defs
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func parseDefinition(file string) (*Definition, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&def)
	return &def, nil
}

func applyDefaults(def *Definition) {
	if def.Strategy == "" {
		def.Strategy = StrategySinglePage
	}
	if def.Preset == "" {
		def.Preset = PresetGeneric
	}
	if def.RateClass == "" {
		def.RateClass = "default"
	}
	if def.Settings.RefreshInterval == 0 {
		def.Settings.RefreshInterval = 21600
	}
	if def.Settings.Timeout == 0 {
		def.Settings.Timeout = 90
	}
}

var validFilterFields = map[string]bool{
	"title":       true,
	"description": true,
	"venue":       true,
	"city":        true,
	"category":    true,
	"url":         true,
}

func validateDefinition(def *Definition) error {
	if def == nil {
		return errors.New("definition is nil")
	}
	if def.Name == "" {
		return errors.New("source name is required")
	}
	if def.URL == "" {
		return errors.New("source URL is required")
	}
	if _, err := urlnorm.Normalize(def.URL, ""); err != nil {
		return fmt.Errorf("source URL: %w", err)
	}

	switch def.Strategy {
	case StrategySinglePage, StrategyCrawl, StrategyFeed:
	default:
		return fmt.Errorf("unknown strategy: %s", def.Strategy)
	}
	if _, ok := presets[def.Preset]; !ok {
		return fmt.Errorf("unknown preset: %s", def.Preset)
	}
	switch def.RateClass {
	case "default", "gentle":
	default:
		return fmt.Errorf("unknown rate class: %s", def.RateClass)
	}

	nonNegativeFields := map[string]int{
		"refresh interval": def.Settings.RefreshInterval,
		"timeout":          def.Settings.Timeout,
		"max depth":        def.Crawl.MaxDepth,
		"max pages":        def.Crawl.MaxPages,
		"wait":             def.Crawl.WaitMs,
	}
	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	patterns := [][]string{def.Crawl.IncludePaths, def.Crawl.ExcludePaths, def.Crawl.DetailPatterns, def.Crawl.ListingPatterns}
	for _, group := range patterns {
		for _, p := range group {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("invalid pattern %q: %w", p, err)
			}
		}
	}

	for i, filter := range def.Filters {
		if !validFilterFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}
