package source

import (
	"fmt"
	"strings"

	"github.com/lysyi3m/event-comb/app/event"
)

// Filterer applies a source's include/exclude rules to candidates.
type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run returns the kept candidates and a reason for every dropped one.
func (f *Filterer) Run(candidates []event.Candidate, def *Definition) ([]event.Candidate, []string) {
	if len(def.Filters) == 0 {
		return candidates, nil
	}

	kept := make([]event.Candidate, 0, len(candidates))
	var reasons []string
	for _, c := range candidates {
		if isFiltered, reason := f.applyFilters(c, def.Filters); isFiltered {
			reasons = append(reasons, fmt.Sprintf("%q: %s", c.Title, reason))
			continue
		}
		kept = append(kept, c)
	}

	return kept, reasons
}

// Match reports whether c is filtered out by def, with the reason.
func (f *Filterer) Match(c event.Candidate, def *Definition) (bool, string) {
	return f.applyFilters(c, def.Filters)
}

func (f *Filterer) applyFilters(c event.Candidate, filters []Filter) (bool, string) {
	for _, filter := range filters {
		value := f.getFieldValue(c, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(c event.Candidate, field string) string {
	switch field {
	case "title":
		return c.Title
	case "description":
		return c.Description
	case "venue":
		return c.Venue
	case "city":
		return c.City
	case "category":
		return c.Category + " " + c.Subcategory
	case "url":
		return c.URL
	default:
		return ""
	}
}
