package extract

import (
	"testing"

	"github.com/lysyi3m/event-comb/app/event"
)

const graphPage = `<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@graph": [
    {"@type": "Organization", "name": "Promoter"},
    {
      "@type": "MusicEvent",
      "@id": "https://example.com/events/rock#event",
      "name": "Rock &amp; Roll Night",
      "startDate": "2030-05-01T20:00:00+02:00",
      "url": "https://example.com/events/rock",
      "image": {"@type": "ImageObject", "url": "https://example.com/rock.jpg"},
      "maximumAttendeeCapacity": 1200,
      "location": {
        "@type": "Place",
        "name": "O2 Arena",
        "address": {"@type": "PostalAddress", "addressLocality": "Praha"}
      }
    },
    {"@type": "Event", "name": "Undated Event"}
  ]
}
</script>
<script type="application/ld+json">{ not json</script>
</head><body></body></html>`

func TestStructuredDataGraph(t *testing.T) {
	candidates := StructuredData(graphPage)
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d: %+v", len(candidates), candidates)
	}

	c := candidates[0]
	if c.Title != "Rock & Roll Night" {
		t.Errorf("Expected decoded title, got %q", c.Title)
	}
	if c.Date != "2030-05-01T20:00:00+02:00" {
		t.Errorf("Expected raw start date, got %q", c.Date)
	}
	if c.Venue != "O2 Arena" || c.City != "Praha" {
		t.Errorf("Expected O2 Arena in Praha, got %q in %q", c.Venue, c.City)
	}
	if c.Category != event.CategoryConcert {
		t.Errorf("Expected category from MusicEvent type, got %q", c.Category)
	}
	if c.Image != "https://example.com/rock.jpg" {
		t.Errorf("Expected image from ImageObject, got %q", c.Image)
	}
	if c.Attendance != 1200 {
		t.Errorf("Expected attendance 1200, got %d", c.Attendance)
	}
	if c.URL != "https://example.com/events/rock" {
		t.Errorf("Unexpected URL %q", c.URL)
	}
}

func TestStructuredDataListAndSubEvents(t *testing.T) {
	html := `<script type="application/ld+json">[
	  {"@type": ["Festival"], "name": "Summer Fest", "startDate": "2030-07-01", "endDate": "2030-07-03",
	   "location": "Letná",
	   "subEvent": [{"@type": "TheaterEvent", "name": "Hamlet", "startDate": "2030-07-02"}]}
	]</script>`

	candidates := StructuredData(html)
	if len(candidates) != 2 {
		t.Fatalf("Expected festival and sub event, got %d", len(candidates))
	}
	if candidates[0].Category != event.CategoryFestival || candidates[0].EndDate != "2030-07-03" {
		t.Errorf("Unexpected festival candidate: %+v", candidates[0])
	}
	if candidates[0].Venue != "Letná" {
		t.Errorf("Expected plain string location as venue, got %q", candidates[0].Venue)
	}
	if candidates[1].Title != "Hamlet" || candidates[1].Category != event.CategoryTheatre {
		t.Errorf("Unexpected sub event: %+v", candidates[1])
	}
}

func TestStructuredDataWithoutBlocks(t *testing.T) {
	if got := StructuredData(`<html><body><h1>Events</h1></body></html>`); got != nil {
		t.Errorf("Expected nil for page without JSON-LD, got %+v", got)
	}
	if got := StructuredData(""); got != nil {
		t.Errorf("Expected nil for empty page, got %+v", got)
	}
}

func TestStructuredDataNestedOrderIsStable(t *testing.T) {
	const page = `<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "WebPage",
  "mainEntity": {"@type": "Event", "name": "Beta", "startDate": "2030-06-02"},
  "about": {"@type": "Event", "name": "Alpha", "startDate": "2030-06-01"},
  "hasPart": {"@type": "Event", "name": "Gamma", "startDate": "2030-06-03"}
}
</script>`

	for i := 0; i < 20; i++ {
		got := StructuredData(page)
		if len(got) != 3 {
			t.Fatalf("Expected 3 events, got %d", len(got))
		}
		if got[0].Title != "Alpha" || got[1].Title != "Gamma" || got[2].Title != "Beta" {
			t.Fatalf("Unexpected order: %s, %s, %s", got[0].Title, got[1].Title, got[2].Title)
		}
	}
}
