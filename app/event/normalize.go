package event

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/lysyi3m/event-comb/app/dates"
	"github.com/lysyi3m/event-comb/app/textutil"
	"github.com/lysyi3m/event-comb/app/urlnorm"
)

var (
	ErrMissingTitle = errors.New("missing title")
	ErrMissingDate  = errors.New("missing date")
	ErrPastDate     = errors.New("date before today")
)

const (
	maxTitleLength       = 300
	maxDescriptionLength = 4000
)

// Normalizer turns candidates into normalized events for one run.
type Normalizer struct {
	Source   string
	Dates    *dates.Parser
	Taxonomy *Taxonomy
	// Today is the run's ISO date; earlier events are rejected.
	Today string
	// City and Category fill gaps left by the extractor.
	City     string
	Category string
}

// Normalize validates c. Errors are validation rejections; callers count
// them as skipped records.
func (n *Normalizer) Normalize(c Candidate, pageURL string) (Normalized, error) {
	title := textutil.Truncate(textutil.Squash(c.Title), maxTitleLength)
	if title == "" {
		return Normalized{}, ErrMissingTitle
	}
	if strings.TrimSpace(c.Date) == "" {
		return Normalized{}, ErrMissingDate
	}

	r, err := n.Dates.Parse(c.Date)
	if err != nil {
		return Normalized{}, fmt.Errorf("date %q: %w", c.Date, err)
	}
	if n.Today != "" && dates.Before(r.Start, n.Today) {
		return Normalized{}, fmt.Errorf("%w: %s", ErrPastDate, r.Start)
	}

	endDate := r.End
	if strings.TrimSpace(c.EndDate) != "" {
		if end, err := n.Dates.Normalize(c.EndDate); err == nil {
			endDate = end
		}
	}
	if endDate != "" && !dates.Before(r.Start, endDate) {
		endDate = ""
	}

	eventURL := ""
	if c.URL != "" {
		eventURL = urlnorm.MustNormalize(c.URL, pageURL)
	}
	image := ""
	if c.Image != "" {
		image = urlnorm.MustNormalize(c.Image, pageURL)
	}

	description := textutil.Truncate(strings.TrimSpace(c.Description), maxDescriptionLength)
	category := n.Taxonomy.Category(textutil.FirstNonEmpty(c.Category, n.Category), title, description)

	attendance := c.Attendance
	if attendance < 0 {
		attendance = 0
	}

	ev := Normalized{
		Source:      n.Source,
		Title:       title,
		Description: description,
		Date:        r.Start,
		EndDate:     endDate,
		City:        textutil.FirstNonEmpty(textutil.Squash(c.City), n.City),
		Venue:       textutil.Squash(c.Venue),
		Category:    category,
		Subcategory: textutil.Squash(c.Subcategory),
		URL:         eventURL,
		Image:       image,
		Attendance:  attendance,
	}
	ev.LocalID = LocalID(c.ID, ev)
	return ev, nil
}

// LocalID returns the explicit id when present, otherwise a stable hash of
// the folded title, date and canonical URL.
func LocalID(explicit string, ev Normalized) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	sum := sha256.Sum256([]byte(textutil.Fold(ev.Title) + "|" + ev.Date + "|" + ev.URL))
	return hex.EncodeToString(sum[:16])
}

// Key is the content key used to merge candidates across chunks and pages.
func Key(title, date, url string) string {
	return textutil.Fold(title) + "|" + strings.TrimSpace(date) + "|" + urlnorm.MustNormalize(url, "")
}
