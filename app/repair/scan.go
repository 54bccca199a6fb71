package repair

import (
	"strings"
	"unicode"
)

type scanState struct {
	// stack holds the closers still owed, innermost last.
	stack       []byte
	inString    bool
	escaped     bool
	stringStart int
	stringIsKey bool
	// danglingKey is the start of an object key that ends the input without
	// its colon, or -1.
	danglingKey int
}

func scan(s string) scanState {
	st := scanState{danglingKey: -1}
	var last byte
	lastKeyStart := -1

	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.inString {
			switch {
			case st.escaped:
				st.escaped = false
			case c == '\\':
				st.escaped = true
			case c == '"':
				st.inString = false
				last = '"'
				lastKeyStart = -1
				if st.stringIsKey {
					lastKeyStart = st.stringStart
				}
			}
			continue
		}

		switch c {
		case '"':
			st.inString = true
			st.stringStart = i
			st.stringIsKey = len(st.stack) > 0 && st.stack[len(st.stack)-1] == '}' && (last == '{' || last == ',')
			continue
		case '{':
			st.stack = append(st.stack, '}')
		case '[':
			st.stack = append(st.stack, ']')
		case '}', ']':
			if n := len(st.stack); n > 0 && st.stack[n-1] == c {
				st.stack = st.stack[:n-1]
			}
		}
		if !isSpace(c) {
			last = c
			lastKeyStart = -1
		}
	}

	if !st.inString && last == '"' {
		st.danglingKey = lastKeyStart
	}
	return st
}

// autoClose turns a truncated document into a syntactically complete one.
func autoClose(s string) string {
	st := scan(s)
	if st.inString {
		if st.stringIsKey {
			s = s[:st.stringStart]
		} else {
			if st.escaped {
				s = s[:len(s)-1]
			}
			s = trimPartialEscape(s) + `"`
		}
	}

	s = trimDangling(s)

	st = scan(s)
	var b strings.Builder
	b.Grow(len(s) + len(st.stack))
	b.WriteString(s)
	for i := len(st.stack) - 1; i >= 0; i-- {
		b.WriteByte(st.stack[i])
	}
	return stripTrailingCommas(b.String())
}

// trimDangling removes or completes whatever incomplete token ends s.
func trimDangling(s string) string {
	for {
		t := strings.TrimRightFunc(s, unicode.IsSpace)
		if t == "" {
			return t
		}

		switch t[len(t)-1] {
		case ',':
			s = t[:len(t)-1]
			continue
		case ':':
			return t + "null"
		case '"':
			if st := scan(t); st.danglingKey >= 0 {
				s = t[:st.danglingKey]
				continue
			}
			return t
		case '{', '[', '}', ']':
			return t
		}

		j := len(t)
		for j > 0 && isLiteralByte(t[j-1]) {
			j--
		}
		tok := t[j:]
		switch {
		case tok == "":
			return t
		case strings.HasPrefix("true", tok):
			return t[:j] + "true"
		case strings.HasPrefix("false", tok):
			return t[:j] + "false"
		case strings.HasPrefix("null", tok):
			return t[:j] + "null"
		}

		num := strings.TrimRight(tok, ".eE+-")
		if num != "" && isNumber(num) {
			return t[:j] + num
		}
		s = t[:j]
	}
}

// trimPartialEscape drops an incomplete \uXXXX escape at the end of s.
func trimPartialEscape(s string) string {
	for k := 1; k <= 5 && k <= len(s); k++ {
		i := len(s) - k
		if s[i] != '\\' {
			continue
		}
		backslashes := 0
		for j := i; j >= 0 && s[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 1 && i+1 < len(s) && s[i+1] == 'u' {
			return s[:i]
		}
		return s
	}
	return s
}

func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
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
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// cutPoints lists offsets just past every closing bracket outside strings.
func cutPoints(s string) []int {
	var cuts []int
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
		case '}', ']':
			cuts = append(cuts, i+1)
		}
	}
	return cuts
}

// truncateRepetition cuts s at the first run of a short ASCII unit repeated
// back to back at least minRepeats times (minSingle for one-byte units).
func truncateRepetition(s string, minRepeats, minSingle int) string {
	if i := findRepetition(s, minRepeats, minSingle); i >= 0 {
		return s[:i]
	}
	return s
}

func findRepetition(s string, minRepeats, minSingle int) int {
	if minRepeats <= 1 || minSingle <= 1 {
		return -1
	}
	for i := 0; i < len(s); i++ {
		for n := 1; n <= 4 && i+n <= len(s); n++ {
			need := minRepeats
			if n == 1 {
				need = minSingle
			}
			if i+n*need > len(s) {
				continue
			}
			unit := s[i : i+n]
			if !repeatableUnit(unit) || !primitiveUnit(unit) {
				continue
			}
			reps := 1
			for j := i + n; j+n <= len(s) && s[j:j+n] == unit; j += n {
				reps++
				if reps >= need {
					return i
				}
			}
		}
	}
	return -1
}

func repeatableUnit(unit string) bool {
	for i := 0; i < len(unit); i++ {
		if unit[i] < 0x21 || unit[i] > 0x7e {
			return false
		}
	}
	return true
}

// primitiveUnit reports whether unit is not itself a repetition of a shorter
// unit, so "----" is judged as a one-byte run rather than a four-byte one.
func primitiveUnit(unit string) bool {
	for p := 1; p < len(unit); p++ {
		if len(unit)%p == 0 && strings.Repeat(unit[:p], len(unit)/p) == unit {
			return false
		}
	}
	return true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isLiteralByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '.' || c == '+' || c == '-'
}

func isNumber(s string) bool {
	digits := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits = true
		case c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E':
		default:
			return false
		}
	}
	return digits
}
