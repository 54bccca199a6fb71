package extract

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/lysyi3m/event-comb/app/dates"
	"github.com/lysyi3m/event-comb/app/event"
	"github.com/mmcdole/gofeed"
)

// FeedExtractor converts RSS/Atom items into candidates. Event dates come
// from the RSS event module (ev:startdate) when present, then from a date
// in the title, then from the publication date.
type FeedExtractor struct {
	gofeedParser *gofeed.Parser
}

func NewFeedExtractor() *FeedExtractor {
	return &FeedExtractor{
		gofeedParser: gofeed.NewParser(),
	}
}

func (f *FeedExtractor) Run(data []byte) ([]event.Candidate, error) {
	feed, err := f.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	candidates := make([]event.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		candidates = append(candidates, f.normalizeItem(item))
	}
	return candidates, nil
}

func (f *FeedExtractor) normalizeItem(item *gofeed.Item) event.Candidate {
	c := event.Candidate{
		ID:          cmp.Or(item.GUID, item.Link),
		Title:       html2text(item.Title),
		Description: html2text(cmp.Or(item.Description, item.Content)),
		URL:         item.Link,
		Date:        eventExtension(item, "startdate"),
		EndDate:     eventExtension(item, "enddate"),
		Venue:       eventExtension(item, "location"),
	}

	if c.Date == "" {
		if m := dateShapeRe.FindString(item.Title); m != "" {
			c.Date = m
		}
	}
	if c.Date == "" && item.PublishedParsed != nil {
		c.Date = item.PublishedParsed.Format(dates.Layout)
	}

	if len(item.Categories) > 0 {
		c.Category = item.Categories[0]
	}

	if item.Image != nil && item.Image.URL != "" {
		c.Image = item.Image.URL
	} else {
		// RSS 2.0 allows one enclosure per item
		for _, enc := range item.Enclosures {
			if enc != nil && strings.HasPrefix(enc.Type, "image/") {
				c.Image = enc.URL
				break
			}
		}
	}

	return c
}

func eventExtension(item *gofeed.Item, name string) string {
	ns, ok := item.Extensions["ev"]
	if !ok {
		return ""
	}
	for _, e := range ns[name] {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}
