package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/textutil"
)

var typeCategories = map[string]string{
	"musicevent":      event.CategoryConcert,
	"festival":        event.CategoryFestival,
	"theaterevent":    event.CategoryTheatre,
	"comedyevent":     event.CategoryTheatre,
	"danceevent":      event.CategoryTheatre,
	"sportsevent":     event.CategorySports,
	"exhibitionevent": event.CategoryExhibition,
	"businessevent":   event.CategoryConference,
	"educationevent":  event.CategoryConference,
}

// StructuredData returns the events described by JSON-LD blocks in html.
// It makes no network calls.
func StructuredData(html string) []event.Candidate {
	if !strings.Contains(html, "ld+json") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		slog.Debug("Failed to parse HTML for structured data", "error", err)
		return nil
	}

	var out []event.Candidate
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			slog.Debug("Skipping invalid JSON-LD block", "error", err)
			return
		}
		for _, node := range flattenEvents(data) {
			if c, ok := candidateFromNode(node); ok {
				out = append(out, c)
			}
		}
	})
	return out
}

// flattenEvents walks @graph containers, lists and nested objects and
// returns every node typed as an event.
func flattenEvents(v any) []map[string]any {
	var out []map[string]any
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			if isEventNode(t) {
				out = append(out, t)
				if sub, ok := t["subEvent"]; ok {
					walk(sub)
				}
				return
			}
			for _, key := range slices.Sorted(maps.Keys(t)) {
				if key == "@context" {
					continue
				}
				walk(t[key])
			}
		}
	}
	walk(v)
	return out
}

func nodeTypes(node map[string]any) []string {
	var types []string
	switch t := node["@type"].(type) {
	case string:
		types = append(types, t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				types = append(types, s)
			}
		}
	}
	for i, typ := range types {
		if idx := strings.LastIndexAny(typ, "/#:"); idx >= 0 {
			typ = typ[idx+1:]
		}
		types[i] = strings.ToLower(strings.TrimSpace(typ))
	}
	return types
}

func isEventNode(node map[string]any) bool {
	for _, typ := range nodeTypes(node) {
		if strings.HasSuffix(typ, "event") || typ == "festival" {
			return true
		}
	}
	return false
}

func candidateFromNode(node map[string]any) (event.Candidate, bool) {
	c := event.Candidate{
		ID:          stringField(node, "@id"),
		Title:       html2text(stringField(node, "name", "headline", "title")),
		Description: html2text(stringField(node, "description", "disambiguatingDescription")),
		Date:        stringField(node, "startDate", "startTime", "date", "doorTime"),
		EndDate:     stringField(node, "endDate", "endTime"),
		URL:         stringField(node, "url", "sameAs"),
		Image:       imageField(node["image"]),
		Attendance:  intField(node, "maximumAttendeeCapacity", "remainingAttendeeCapacity"),
	}
	if strings.HasPrefix(c.ID, "_:") {
		c.ID = ""
	}
	if c.URL == "" && strings.HasPrefix(c.ID, "http") {
		c.URL = c.ID
	}
	c.Venue, c.City = locationFields(node["location"])

	for _, typ := range nodeTypes(node) {
		if cat, ok := typeCategories[typ]; ok {
			c.Category = cat
			break
		}
	}
	if c.Category == "" {
		c.Category = stringField(node, "genre", "keywords")
	}

	return c, c.Title != "" && c.Date != ""
}

// stringField returns the first non-empty value among keys. Arrays yield
// their first string; objects yield their "@id", "url" or "name".
func stringField(node map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := asString(node[key]); s != "" {
			return s
		}
	}
	return ""
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	case json.Number:
		return t.String()
	case []any:
		for _, item := range t {
			if s := asString(item); s != "" {
				return s
			}
		}
	case map[string]any:
		return textutil.FirstNonEmpty(asString(t["url"]), asString(t["@id"]), asString(t["name"]))
	}
	return ""
}

func intField(node map[string]any, keys ...string) int {
	for _, key := range keys {
		if n := asInt(node[key]); n > 0 {
			return n
		}
	}
	return 0
}

func imageField(v any) string {
	switch t := v.(type) {
	case map[string]any:
		return textutil.FirstNonEmpty(asString(t["url"]), asString(t["contentUrl"]), asString(t["@id"]))
	default:
		return asString(v)
	}
}

// locationFields reads venue and city from a Place, a plain string or a
// list of either.
func locationFields(v any) (venue, city string) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), ""
	case []any:
		for _, item := range t {
			if venue, city = locationFields(item); venue != "" || city != "" {
				return venue, city
			}
		}
	case map[string]any:
		venue = asString(t["name"])
		switch addr := t["address"].(type) {
		case string:
			city = strings.TrimSpace(addr)
		case map[string]any:
			city = textutil.FirstNonEmpty(asString(addr["addressLocality"]), asString(addr["addressRegion"]))
			if venue == "" {
				venue = asString(addr["streetAddress"])
			}
		}
	}
	return venue, city
}

// html2text strips markup that some sites embed in JSON-LD strings.
func html2text(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return textutil.Squash(doc.Text())
}
