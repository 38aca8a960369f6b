// Package extract recovers structured JSON objects from unreliable free-text
// model output.
//
// Model replies rarely arrive as clean JSON: the object may be wrapped in
// prose, fenced in a markdown code block, or mangled with Python-style single
// quotes, trailing commas, and unquoted keys. [Extract] tries a sequence of
// increasingly forgiving strategies and accepts only a top-level JSON object
// (never an array or scalar).
//
// The repair heuristics are pure text transforms, each independently testable
// before being chained.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// previewLimit bounds how much of the original text an [*Error] retains for
// diagnostics.
const previewLimit = 200

// Error is returned when no valid object-shaped content can be recovered.
type Error struct {
	// Preview is a bounded excerpt of the original text.
	Preview string

	// Err is the last underlying parse error, when one exists.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: no JSON object found (%v); input: %q", e.Err, e.Preview)
	}
	return fmt.Sprintf("extract: no JSON object found; input: %q", e.Preview)
}

// Unwrap returns the underlying parse error, which may be nil.
func (e *Error) Unwrap() error { return e.Err }

// newError builds an [*Error] with a rune-safe preview of text.
func newError(text string, cause error) *Error {
	preview := text
	if len(preview) > previewLimit {
		cut := previewLimit
		for cut > 0 && !utf8.RuneStart(preview[cut]) {
			cut--
		}
		preview = preview[:cut]
	}
	return &Error{Preview: preview, Err: cause}
}

// Extract recovers the first JSON object from text and returns it as a
// generic map. Strategies are attempted in order, first success wins:
//
//  1. Parse the whole text directly.
//  2. Parse the contents of fenced code blocks (```json first, then bare ```).
//  3. Isolate the first balanced {...} span — tracking nesting depth while
//     ignoring braces inside quoted strings — and parse that.
//
// Each candidate that fails to parse is retried after the repair passes in
// repair.go (single→double quotes, trailing-comma strip, bare-key quoting).
//
// Only a candidate whose outermost value is a JSON object is accepted. On
// total failure Extract returns an [*Error] with a bounded preview of text.
func Extract(text string) (map[string]any, error) {
	var lastErr error
	for _, candidate := range candidates(text) {
		m, err := parseObject(candidate)
		if err == nil {
			return m, nil
		}
		lastErr = err

		repaired := candidate
		for _, pass := range repairPasses {
			repaired = pass(repaired)
			m, err = parseObject(repaired)
			if err == nil {
				return m, nil
			}
			lastErr = err
		}
	}
	return nil, newError(text, lastErr)
}

// ExtractInto recovers the first JSON object from text and unmarshals it into
// out, which must be a pointer. Extraction failures are an [*Error]; decoding
// failures of a successfully extracted object are returned verbatim from
// encoding/json so callers can distinguish shape problems from extraction
// problems.
func ExtractInto(text string, out any) error {
	m, err := Extract(text)
	if err != nil {
		return err
	}
	// Round-trip through JSON to apply out's field mapping.
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("extract: re-encode object: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("extract: decode object: %w", err)
	}
	return nil
}

// candidates returns the substrings to attempt parsing, in priority order.
// Duplicates are removed while preserving order.
func candidates(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	add(text)
	for _, block := range fencedBlocks(text) {
		add(block)
	}
	if span := balancedObject(text); span != "" {
		add(span)
	}
	return out
}

// parseObject parses s and accepts only a top-level JSON object.
func parseObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top-level value is %T, not an object", v)
	}
	return m, nil
}

// fencedBlocks returns the inner content of every markdown code fence in
// text. Language-tagged fences (```json) come before untagged ones.
func fencedBlocks(text string) []string {
	var tagged, untagged []string

	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			break
		}
		rest = rest[start+3:]

		end := strings.Index(rest, "```")
		if end < 0 {
			break
		}
		block := rest[:end]
		rest = rest[end+3:]

		// The first line after the opening fence may be a language tag.
		hasTag := false
		if nl := strings.IndexByte(block, '\n'); nl >= 0 {
			tag := strings.TrimSpace(block[:nl])
			if tag != "" && !strings.ContainsAny(tag, "{}\"") {
				hasTag = true
				block = block[nl+1:]
			}
		}

		if hasTag {
			tagged = append(tagged, block)
		} else {
			untagged = append(untagged, block)
		}
	}

	return append(tagged, untagged...)
}

// balancedObject scans text for the first '{' and returns the substring up to
// its matching '}', tracking nesting depth and skipping braces inside quoted
// strings (with backslash escapes). Returns "" when no balanced object exists.
func balancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
