package database

import (
	"github.com/lysyi3m/event-comb/app/dates"
)

// Change is one column that differs between a stored row and a record.
type Change struct {
	Column string
	Value  any
}

type Changes []Change

func (c Changes) Columns() []string {
	cols := make([]string, len(c))
	for i, ch := range c {
		cols[i] = ch.Column
	}
	return cols
}

// Diff compares the tracked fields of stored and rec. Dates are compared
// at calendar-date granularity. A zero attendance means unknown and never
// overwrites a stored estimate.
func Diff(stored *StoredEvent, rec Record) Changes {
	ev := rec.Event
	var changes Changes

	text := func(column, was, now string) {
		if was != now {
			changes = append(changes, Change{Column: column, Value: now})
		}
	}

	text("title", stored.Title, ev.Title)
	text("description", stored.Description, ev.Description)
	if dates.Truncate(stored.Date) != dates.Truncate(ev.Date) {
		changes = append(changes, Change{Column: "date", Value: dates.Truncate(ev.Date)})
	}
	if dates.Truncate(stored.EndDate) != dates.Truncate(ev.EndDate) {
		changes = append(changes, Change{Column: "end_date", Value: dates.Truncate(ev.EndDate)})
	}
	text("city", stored.City, ev.City)
	text("venue", stored.Venue, ev.Venue)
	text("category", stored.Category, ev.Category)
	text("subcategory", stored.Subcategory, ev.Subcategory)
	if ev.Attendance > 0 && ev.Attendance != stored.Attendance {
		changes = append(changes, Change{Column: "attendance", Value: ev.Attendance})
	}
	text("url", stored.URL, ev.URL)
	text("image", stored.Image, ev.Image)

	return changes
}
