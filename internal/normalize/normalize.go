// Package normalize turns free-form model output into JSON values.
//
// Model replies routinely wrap JSON in markdown fences, surround it with
// prose, or leave trailing commas behind. The functions here recover what
// they can and fall back to a caller-supplied default otherwise. They never
// return an error.
package normalize

import (
	"encoding/json"
	"regexp"
	"strings"
)

// trailingCommaPattern matches trailing commas before ] or }.
var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

// Clean strips markdown code fences and trims the text to the span between
// the first '{' and the last '}'. Text without such a span is returned
// trimmed. Empty input yields "{}".
func Clean(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "{}"
	}

	text := strings.ReplaceAll(raw, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// RepairTrailingCommas removes commas that directly precede a closing
// brace or bracket.
func RepairTrailingCommas(s string) string {
	return trailingCommaPattern.ReplaceAllString(s, "$1")
}

// Parse decodes raw into a generic JSON value, returning def when nothing
// usable can be recovered.
func Parse(raw string, def any) any {
	var v any
	if !decodeInto(raw, func() any { return &v }) {
		return def
	}
	return v
}

// Decode decodes raw into a T, returning def when nothing usable can be
// recovered.
func Decode[T any](raw string, def T) T {
	var out T
	ok := decodeInto(raw, func() any {
		var zero T
		out = zero
		return &out
	})
	if !ok {
		return def
	}
	return out
}

// decodeInto tries, in order: the cleaned span, the cleaned span without
// trailing commas, and then every balanced object in the text, outer spans
// before the spans nested inside them. fresh must return a pointer to a
// zero value on each call.
func decodeInto(raw string, fresh func() any) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}

	cleaned := Clean(raw)
	if tryUnmarshal(cleaned, fresh) {
		return true
	}
	if repaired := RepairTrailingCommas(cleaned); repaired != cleaned && tryUnmarshal(repaired, fresh) {
		return true
	}

	for _, candidate := range objectCandidates(cleaned) {
		if candidate == cleaned {
			continue
		}
		if tryUnmarshal(candidate, fresh) || tryUnmarshal(RepairTrailingCommas(candidate), fresh) {
			return true
		}
	}
	return false
}

// tryUnmarshal rejects a bare null, which would otherwise decode into a nil
// map or slice instead of the caller's default.
func tryUnmarshal(s string, fresh func() any) bool {
	if strings.TrimSpace(s) == "null" {
		return false
	}
	return json.Unmarshal([]byte(s), fresh()) == nil
}

// objectCandidates returns the balanced spans of s depth-first: each
// top-level span followed by the spans nested inside it.
func objectCandidates(s string) []string {
	var out []string
	for _, span := range balancedObjects(s) {
		out = append(out, span)
		out = append(out, objectCandidates(span[1:len(span)-1])...)
	}
	return out
}

// balancedObjects returns each top-level {...} span of s whose braces
// balance, skipping braces inside string literals.
func balancedObjects(s string) []string {
	var (
		out      []string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, s[start:i+1])
				start = -1
			}
		}
	}
	return out
}
