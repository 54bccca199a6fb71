package repair

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseValid(t *testing.T) {
	raw := `{"events":[{"title":"Rock Concert","date":"2025-12-04"}]}`

	res := Parse(raw)
	if res.Kind != Parsed {
		t.Fatalf("Expected Parsed, got %s (%v)", res.Kind, res.Err)
	}
	if len(res.Events) != 1 || res.Events[0]["title"] != "Rock Concert" {
		t.Errorf("Unexpected events: %v", res.Events)
	}
}

func TestParseFencedWithProse(t *testing.T) {
	raw := "Here are the events I found:\n```json\n{\"events\":[{\"title\":\"Jazz Night\"}]}\n```\nLet me know if you need more."

	res := Parse(raw)
	if res.Kind != Parsed {
		t.Fatalf("Expected Parsed, got %s (%v)", res.Kind, res.Err)
	}
	if len(res.Events) != 1 || res.Events[0]["title"] != "Jazz Night" {
		t.Errorf("Unexpected events: %v", res.Events)
	}
}

func TestParseTopLevelArray(t *testing.T) {
	res := Parse(`[{"title":"A"},{"title":"B"}]`)
	if res.Kind != Parsed || len(res.Events) != 2 {
		t.Fatalf("Expected two parsed events, got %s %v", res.Kind, res.Events)
	}
}

func TestParseTruncatedMidString(t *testing.T) {
	complete := `{"title":"Rock Concert","date":"2025-12-04","venue":"Lucerna"}`
	raw := `{"events":[` + complete + `,{"title":"Jazz Ni`

	res := Parse(raw)
	if res.Kind != Repaired {
		t.Fatalf("Expected Repaired, got %s", res.Kind)
	}
	if len(res.Events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(res.Events))
	}

	var want map[string]any
	dec := json.NewDecoder(strings.NewReader(complete))
	dec.UseNumber()
	if err := dec.Decode(&want); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Events[0], want) {
		t.Errorf("Complete element changed: got %v, want %v", res.Events[0], want)
	}
	if res.Events[1]["title"] != "Jazz Ni" {
		t.Errorf("Expected truncated title to be closed, got %v", res.Events[1]["title"])
	}
	if !json.Valid([]byte(res.Text)) {
		t.Errorf("Repaired text is not valid JSON: %s", res.Text)
	}
}

func TestParseRepeatedCorruption(t *testing.T) {
	raw := `{"events":[{"title":"A","date":"2025-12-04"},{"title":"B","url":"https://example.com/6/6/6/6/6/6/6/6/6/6/6/6/6/6/6/6/6/6/6/6/6/6/6/6/6`

	res := Parse(raw)
	if res.Kind != Repaired {
		t.Fatalf("Expected Repaired, got %s", res.Kind)
	}
	if len(res.Events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(res.Events))
	}
	if url, _ := res.Events[1]["url"].(string); strings.Contains(url, "/6/6") {
		t.Errorf("Corruption not truncated: %q", url)
	}
}

func TestParseCorruptionInsideValidDocument(t *testing.T) {
	raw := `{"events":[{"title":"A"},{"title":"B","description":"/6/6/6/6/6/6/6/6/"}]}`

	res := Parse(raw)
	if res.Kind == Parsed {
		t.Fatal("Expected corrupted document to go through repair")
	}
	if !errors.Is(res.Err, ErrCorrupted) {
		t.Errorf("Expected ErrCorrupted, got %v", res.Err)
	}
	if len(res.Events) != 2 || res.Events[1]["description"] != "" {
		t.Errorf("Expected description cut before corruption, got %v", res.Events)
	}
}

func TestParseTrailingCommas(t *testing.T) {
	res := Parse(`{"events":[{"title":"A",},],}`)
	if res.Kind != Repaired || len(res.Events) != 1 {
		t.Fatalf("Expected one repaired event, got %s %v", res.Kind, res.Events)
	}
}

func TestParseDanglingTokens(t *testing.T) {
	tests := map[string]string{
		"dangling key":     `{"events":[{"title":"A","da`,
		"key without colon": `{"events":[{"title":"A","date"`,
		"dangling colon":   `{"events":[{"title":"A","attendance":`,
		"partial literal":  `{"events":[{"title":"A","free":tr`,
		"partial number":   `{"events":[{"title":"A","attendance":12.`,
		"dangling escape":  `{"events":[{"title":"A\`,
		"partial unicode":  `{"events":[{"title":"A\u00`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			res := Parse(raw)
			if res.Kind != Repaired {
				t.Fatalf("Expected Repaired, got %s for %q (text %q)", res.Kind, raw, res.Text)
			}
			if len(res.Events) != 1 {
				t.Fatalf("Expected 1 event, got %v", res.Events)
			}
			if title, _ := res.Events[0]["title"].(string); !strings.HasPrefix(title, "A") {
				t.Errorf("Expected title to start with A, got %q", title)
			}
		})
	}
}

func TestParsePartialPrefix(t *testing.T) {
	raw := `{"events":[{"title":"A"},{"title":"B" "date":"x"}`

	res := Parse(raw)
	if res.Kind != Partial {
		t.Fatalf("Expected Partial, got %s", res.Kind)
	}
	if len(res.Events) != 1 || res.Events[0]["title"] != "A" {
		t.Errorf("Expected only the first event, got %v", res.Events)
	}
}

func TestParseNothingRecoverable(t *testing.T) {
	for _, raw := range []string{"", "I could not find any events on this page.", "{{{{"} {
		res := Parse(raw)
		if res.Kind != Failed {
			t.Errorf("Parse(%q): expected Failed, got %s", raw, res.Kind)
		}
		if res.Events == nil || len(res.Events) != 0 {
			t.Errorf("Parse(%q): expected empty non-nil events", raw)
		}
		if res.Text != EmptyDocument {
			t.Errorf("Parse(%q): expected empty document, got %q", raw, res.Text)
		}
	}
}

func TestParseKeepsSeparatorRuns(t *testing.T) {
	raw := `{"events":[` +
		`{"title":"Festival","description":"Lineup ---------------- doors at 18:00"},` +
		`{"title":"Jazz Night","description":"================"},` +
		`{"title":"Rock Concert"}]}`

	res := Parse(raw)
	if res.Kind != Parsed {
		t.Fatalf("Expected Parsed, got %s (%v)", res.Kind, res.Err)
	}
	if len(res.Events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(res.Events))
	}
	if res.Events[2]["title"] != "Rock Concert" {
		t.Errorf("Unexpected last event: %v", res.Events[2])
	}
}

func TestFindRepetition(t *testing.T) {
	p := Default
	tests := []struct {
		in   string
		want int
	}{
		{"abc/6/6/6/6/6/6/6/6/", 3},
		{"ordinary text with a URL https://example.com/a/b", -1},
		{"spaces                                           end", -1},
		{"★★★★★★★★★★", -1},
		{"x" + strings.Repeat("=", 30), 1},
		{"x" + strings.Repeat("=", 16) + "x", -1},
		{"x" + strings.Repeat("ab", 8) + "x", 1},
	}
	for _, tt := range tests {
		if got := findRepetition(tt.in, p.MinRepeats, p.MinSingleRepeats); got != tt.want {
			t.Errorf("findRepetition(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCompact(t *testing.T) {
	out := Compact([]map[string]any{{"title": "A & B"}})
	if out != `{"events":[{"title":"A & B"}]}` {
		t.Errorf("Unexpected compact output: %s", out)
	}
	if res := Parse(out); res.Kind != Parsed {
		t.Errorf("Compact output should parse directly, got %s", res.Kind)
	}
}
