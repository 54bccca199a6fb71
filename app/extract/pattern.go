package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lysyi3m/event-comb/app/dates"
	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/textutil"
)

// DefaultPatternLimit caps the candidates of one pattern scan.
const DefaultPatternLimit = 20

var dateShapeRe = regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b|\b\d{1,2}\s*[./]\s*\d{1,2}\s*[./]\s*(?:\d{2,4})?|\b\d{1,2}\.?\s*(?:[-–]\s*\d{1,2}\.?\s*)?\p{L}{3,}`)

// PatternExtractor pairs date-shaped lines with an adjacent title line.
type PatternExtractor struct {
	Dates *dates.Parser
	Limit int
}

// LooksLikeListing reports whether text contains date-shaped substrings.
func (p *PatternExtractor) LooksLikeListing(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if p.isDateLine(line) {
			return true
		}
	}
	return false
}

func (p *PatternExtractor) Extract(text string) []event.Candidate {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultPatternLimit
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = cleanLine(line); line != "" {
			lines = append(lines, line)
		}
	}

	var out []event.Candidate
	used := make(map[int]bool)
	for i, line := range lines {
		if len(out) >= limit {
			break
		}
		if !p.isDateLine(line) {
			continue
		}

		title := ""
		for _, j := range []int{i + 1, i - 1, i + 2} {
			if j < 0 || j >= len(lines) || used[j] || p.isDateLine(lines[j]) {
				continue
			}
			if isTitleLike(lines[j]) {
				title = lines[j]
				used[j] = true
				break
			}
		}
		if title == "" {
			// A line such as "4. 12. 2025 Rock Concert" carries both.
			if rest := strings.TrimSpace(dateShapeRe.ReplaceAllString(line, "")); isTitleLike(rest) {
				title = rest
			}
		}
		if title == "" {
			continue
		}
		used[i] = true
		out = append(out, event.Candidate{Title: title, Date: line})
	}
	return out
}

func (p *PatternExtractor) isDateLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || utf8.RuneCountInString(line) > 80 || !dateShapeRe.MatchString(line) {
		return false
	}
	_, err := p.Dates.Parse(line)
	return err == nil
}

func isTitleLike(line string) bool {
	n := utf8.RuneCountInString(line)
	if n < 3 || n > 200 {
		return false
	}
	letters := 0
	for _, r := range line {
		if r >= '0' && r <= '9' {
			continue
		}
		if strings.ContainsRune(" .,:;-–|/()[]#*_", r) {
			continue
		}
		letters++
	}
	return letters >= 3
}

// cleanLine drops markdown decoration around a line.
func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "#*->|")
	line = strings.TrimRight(line, "*|")
	line = strings.ReplaceAll(line, "**", "")
	return textutil.Squash(line)
}
