// Package dates turns free-text event dates into ISO calendar dates.
//
// The parser understands ISO strings, dotted and slashed day/month/year,
// localized month names with day ranges, and falls back to dateparse for
// anything else. Rejecting past dates is left to the caller so the same
// parser serves start and end dates.
package dates

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/lysyi3m/event-comb/app/textutil"
)

// Layout is the canonical ISO calendar-date layout.
const Layout = "2006-01-02"

var ErrUnparseable = errors.New("unparseable date")

var (
	isoRe         = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?:$|[t\s])`)
	crossMonthRe  = regexp.MustCompile(`(?:^|[^\d.])(\d{1,2})\.\s*(\d{1,2})\.?\s*-\s*(\d{1,2})\.\s*(\d{1,2})\.\s*(\d{2,4})\b`)
	dottedRangeRe = regexp.MustCompile(`(?:^|[^\d.])(\d{1,2})\.?\s*-\s*(\d{1,2})\.\s*(\d{1,2})\.\s*(\d{2,4})\b`)
	numericRe     = regexp.MustCompile(`\b(\d{1,2})\s*[./]\s*(\d{1,2})\s*[./]\s*(\d{2,4})\b`)
	dayMonthRe    = regexp.MustCompile(`\b(\d{1,2})\.?\s*(?:-\s*(\d{1,2})\.?\s*)?(\p{L}+)\.?,?\s*(\d{4})?`)
	monthDayRe    = regexp.MustCompile(`(\p{L}+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:\s*-\s*(\d{1,2})(?:st|nd|rd|th)?\b)?,?\s*(\d{4})?`)
	dashReplacer  = strings.NewReplacer("–", "-", "—", "-", "‒", "-", "−", "-")
)

// Range is a parsed date. End is empty for single-day dates.
type Range struct {
	Start string
	End   string
}

// Parser normalizes date text. It is safe for concurrent use.
type Parser struct {
	months map[string]time.Month
	now    func() time.Time
	loc    *time.Location
}

// Option customizes a Parser.
type Option func(*Parser)

// WithClock sets the reference clock used to infer missing years.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLocation sets the location used to infer missing years and by the
// generic fallback.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// NewParser builds a parser over the given month tables.
func NewParser(tables []MonthTable, opts ...Option) *Parser {
	p := &Parser{
		months: make(map[string]time.Month),
		now:    time.Now,
		loc:    time.UTC,
	}
	for _, table := range tables {
		for name, month := range table.Names {
			p.months[textutil.Fold(name)] = month
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = NewParser(DefaultTables())

// Normalize converts text with the default parser.
func Normalize(text string) (string, error) {
	return defaultParser.Normalize(text)
}

// Normalize returns the primary ISO date of text.
func (p *Parser) Normalize(text string) (string, error) {
	r, err := p.Parse(text)
	if err != nil {
		return "", err
	}
	return r.Start, nil
}

// Parse returns the start date of text and, for day ranges, the end date.
func (p *Parser) Parse(text string) (Range, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return Range{}, ErrUnparseable
	}
	folded := dashReplacer.Replace(textutil.Fold(raw))

	if m := isoRe.FindStringSubmatch(folded); m != nil {
		if start, ok := build(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return Range{Start: start}, nil
		}
		return Range{}, ErrUnparseable
	}

	if m := crossMonthRe.FindStringSubmatch(folded); m != nil {
		endYear := fullYear(atoi(m[5]))
		startMonth, endMonth := atoi(m[2]), atoi(m[4])
		startYear := endYear
		if startMonth > endMonth {
			startYear--
		}
		start, ok := build(startYear, startMonth, atoi(m[1]))
		end, endOK := build(endYear, endMonth, atoi(m[3]))
		if ok && endOK && start <= end {
			return Range{Start: start, End: end}, nil
		}
	}

	if m := dottedRangeRe.FindStringSubmatch(folded); m != nil {
		year := fullYear(atoi(m[4]))
		month := time.Month(atoi(m[3]))
		if r, ok := p.rangeOf(year, month, atoi(m[1]), atoi(m[2])); ok {
			return r, nil
		}
	}

	numeric := false
	if m := numericRe.FindStringSubmatch(folded); m != nil {
		numeric = true
		day, month, year := atoi(m[1]), atoi(m[2]), fullYear(atoi(m[3]))
		if month > 12 && day <= 12 {
			day, month = month, day
		}
		if start, ok := build(year, month, day); ok {
			return Range{Start: start}, nil
		}
	}

	for _, m := range dayMonthRe.FindAllStringSubmatch(folded, -1) {
		month, ok := p.months[m[3]]
		if !ok {
			continue
		}
		endDay := 0
		if m[2] != "" {
			endDay = atoi(m[2])
		}
		if r, ok := p.rangeOf(p.yearFor(m[4], month, atoi(m[1])), month, atoi(m[1]), endDay); ok {
			return r, nil
		}
	}

	for _, m := range monthDayRe.FindAllStringSubmatch(folded, -1) {
		month, ok := p.months[m[1]]
		if !ok {
			continue
		}
		endDay := 0
		if m[3] != "" {
			endDay = atoi(m[3])
		}
		if r, ok := p.rangeOf(p.yearFor(m[4], month, atoi(m[2])), month, atoi(m[2]), endDay); ok {
			return r, nil
		}
	}

	if !numeric && len(raw) >= 6 {
		if t, err := dateparse.ParseIn(raw, p.loc); err == nil && t.Year() > 1900 {
			return Range{Start: t.Format(Layout)}, nil
		}
	}

	return Range{}, ErrUnparseable
}

// rangeOf builds a single date or a day range within one month. An end day
// smaller than the start day rolls into the following month.
func (p *Parser) rangeOf(year int, month time.Month, day, endDay int) (Range, bool) {
	start, ok := build(year, int(month), day)
	if !ok {
		return Range{}, false
	}
	if endDay == 0 || endDay == day {
		return Range{Start: start}, true
	}
	endMonth, endYear := month, year
	if endDay < day {
		endMonth++
		if endMonth > time.December {
			endMonth = time.January
			endYear++
		}
	}
	end, ok := build(endYear, int(endMonth), endDay)
	if !ok {
		return Range{Start: start}, true
	}
	return Range{Start: start, End: end}, true
}

// yearFor returns the explicit year or infers one: the reference year, or the
// next one when the day has already passed.
func (p *Parser) yearFor(explicit string, month time.Month, day int) int {
	if explicit != "" {
		return atoi(explicit)
	}
	now := p.now().In(p.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.loc)
	candidate := time.Date(now.Year(), month, day, 0, 0, 0, 0, p.loc)
	if candidate.Before(today) {
		return now.Year() + 1
	}
	return now.Year()
}

func build(year, month, day int) (string, bool) {
	if year < 1900 || month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return "", false
	}
	return t.Format(Layout), true
}

func fullYear(y int) int {
	if y < 100 {
		return 2000 + y
	}
	return y
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Before reports whether ISO date a is strictly earlier than ISO date b.
// ISO calendar dates order lexically.
func Before(a, b string) bool {
	return a < b
}

// Today returns the ISO date of t in its own location.
func Today(t time.Time) string {
	return t.Format(Layout)
}

// Truncate reduces a stored date or timestamp to its calendar-date part.
func Truncate(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= len(Layout) && isoRe.MatchString(strings.ToLower(value)) {
		return value[:len(Layout)]
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.Format(Layout)
	}
	return value
}
