// Package normalize turns raw provider text into typed domain records. All default
// substitution for sloppy provider output lives here.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// PreviewLimit bounds how much raw text a ParseError carries.
const PreviewLimit = 200

// maxCandidates bounds how many balanced substrings Decode tries.
const maxCandidates = 8

// ParseError reports provider output that contains no usable JSON.
type ParseError struct {
	Preview string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: provider response is not valid JSON (preview: %q)", e.Preview)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseFailure marks the error for classification as a non-retryable parse failure.
func (e *ParseError) ParseFailure() bool { return true }

// Decode parses raw directly, then falls back to the first balanced JSON object or
// array embedded in it (prose, markdown fences). Trailing commas are tolerated.
func Decode(raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &ParseError{Preview: "", Err: fmt.Errorf("empty response")}
	}

	v, firstErr := unmarshal(trimmed)
	if firstErr == nil {
		return v, nil
	}

	from := 0
	for i := 0; i < maxCandidates; i++ {
		start, end, found := balanced(trimmed, from)
		if !found {
			break
		}
		if end > start {
			if v, err := unmarshal(trimmed[start:end]); err == nil {
				return v, nil
			}
		}
		from = start + 1
	}

	return nil, &ParseError{Preview: Preview(trimmed), Err: firstErr}
}

// Preview returns at most PreviewLimit runes of s.
func Preview(s string) string {
	if utf8.RuneCountInString(s) <= PreviewLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:PreviewLimit]) + "..."
}

func unmarshal(s string) (any, error) {
	var v any
	err := json.Unmarshal([]byte(s), &v)
	if err == nil {
		return v, nil
	}
	cleaned := stripTrailingCommas(s)
	if cleaned == s {
		return nil, err
	}
	if err2 := json.Unmarshal([]byte(cleaned), &v); err2 != nil {
		return nil, err
	}
	return v, nil
}

// balanced finds the first '{' or '[' at or after from and returns the span up to its
// matching close, skipping brackets inside string literals. end is 0 when the opening
// bracket is never closed properly; found is false when there is no opening bracket.
func balanced(s string, from int) (int, int, bool) {
	start := -1
	for i := from; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, 0, false
	}

	stack := make([]byte, 0, 16)
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
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
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return start, 0, true
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return start, i + 1, true
			}
		}
	}
	return start, 0, true
}

func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\n' || s[j] == '\r' || s[j] == '\t') {
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
