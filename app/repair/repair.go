// Package repair recovers event payloads from completion-service output that
// may be fenced, wrapped in prose, truncated or corrupted.
//
// Parsing escalates through three stages and never fails hard: a direct
// parse, a structural repair, and a salvage of the longest parseable prefix.
// When nothing can be recovered the result is an empty, well-formed payload.
package repair

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrNoJSON    = errors.New("no JSON value in response")
	ErrCorrupted = errors.New("repeated-pattern corruption in response")
)

// EmptyDocument is the well-formed payload returned when nothing parses.
const EmptyDocument = `{"events":[]}`

type Kind int

const (
	Parsed Kind = iota
	Repaired
	Partial
	Failed
)

func (k Kind) String() string {
	switch k {
	case Parsed:
		return "parsed"
	case Repaired:
		return "repaired"
	case Partial:
		return "partial"
	default:
		return "failed"
	}
}

// Result is the outcome of Parse. Events is never nil.
type Result struct {
	Kind   Kind
	Events []map[string]any
	// Text is the JSON document that produced Events.
	Text string
	// Err is the first parse error when Kind is not Parsed.
	Err error
}

// Parser holds the heuristic limits of the repair stages.
type Parser struct {
	// MinRepeats is how many back-to-back copies of a 2-4 byte unit mark
	// corrupted output.
	MinRepeats int
	// MinSingleRepeats is the same threshold for a single repeated byte.
	MinSingleRepeats int
	// MaxPartialAttempts bounds how many prefixes stage three tries.
	MaxPartialAttempts int
}

var Default = Parser{
	MinRepeats:         8,
	MinSingleRepeats:   24,
	MaxPartialAttempts: 256,
}

// Parse runs raw through the default parser.
func Parse(raw string) Result {
	return Default.Parse(raw)
}

func (p Parser) Parse(raw string) Result {
	body := extractJSON(stripFences(raw))
	if body == "" {
		return failed(ErrNoJSON)
	}

	// Corrupted repetition can sit inside an otherwise valid string, so its
	// presence always forces the repair path.
	var firstErr error
	if findRepetition(body, p.MinRepeats, p.MinSingleRepeats) < 0 {
		events, err := decode(body)
		if err == nil {
			return Result{Kind: Parsed, Events: events, Text: body}
		}
		firstErr = err
	} else {
		firstErr = ErrCorrupted
	}

	fixed := p.Repair(body)
	if events, err := decode(fixed); err == nil {
		return Result{Kind: Repaired, Events: events, Text: fixed, Err: firstErr}
	}

	if text, events, ok := p.salvage(truncateRepetition(body, p.MinRepeats, p.MinSingleRepeats)); ok {
		return Result{Kind: Partial, Events: events, Text: text, Err: firstErr}
	}

	return failed(firstErr)
}

func failed(err error) Result {
	return Result{Kind: Failed, Events: []map[string]any{}, Text: EmptyDocument, Err: err}
}

// Repair truncates corrupted repetition, closes an unterminated string,
// drops dangling tokens, balances brackets and strips trailing commas.
func (p Parser) Repair(s string) string {
	return autoClose(truncateRepetition(s, p.MinRepeats, p.MinSingleRepeats))
}

// salvage tries progressively shorter prefixes that end on a closing
// bracket, auto-closing each, until one decodes to a plausible payload.
func (p Parser) salvage(s string) (string, []map[string]any, bool) {
	cuts := cutPoints(s)
	if len(cuts) == 0 {
		return "", nil, false
	}

	step := 1
	if p.MaxPartialAttempts > 0 && len(cuts) > p.MaxPartialAttempts {
		step = (len(cuts) + p.MaxPartialAttempts - 1) / p.MaxPartialAttempts
	}

	for k := len(cuts) - 1; k >= 0; k -= step {
		candidate := autoClose(s[:cuts[k]])
		if events, err := decode(candidate); err == nil {
			return candidate, events, true
		}
	}
	return "", nil, false
}

func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	idx := strings.Index(trimmed, "```")
	if idx < 0 {
		return trimmed
	}
	body := trimmed[idx+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	} else if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// extractJSON drops prose around the first JSON object or array. A value
// that never closes is returned up to the end of the input.
func extractJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	s = s[start:]

	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return strings.TrimSpace(s)
}

// decode parses s and checks for a plausible payload: an object with an
// array of events, a bare array of events, or a single event object.
func decode(s string) ([]map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}

	switch t := v.(type) {
	case []any:
		return objects(t), nil
	case map[string]any:
		if arr, ok := t["events"].([]any); ok {
			return objects(arr), nil
		}
		if _, ok := t["title"]; ok {
			return []map[string]any{t}, nil
		}
		for _, val := range t {
			if arr, ok := val.([]any); ok && len(objects(arr)) > 0 {
				return objects(arr), nil
			}
		}
	}
	return nil, fmt.Errorf("implausible payload shape")
}

func objects(arr []any) []map[string]any {
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// Compact re-encodes events as a canonical payload.
func Compact(events []map[string]any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any{"events": events}); err != nil {
		return EmptyDocument
	}
	return strings.TrimSpace(buf.String())
}
