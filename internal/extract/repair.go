package extract

import (
	"regexp"
	"strings"
)

// repairPasses are the best-effort text transforms applied, in order, to a
// candidate that failed to parse. Each pass is pure: same input, same output,
// no side effects.
var repairPasses = []func(string) string{
	normalizeQuotes,
	stripTrailingCommas,
	quoteBareKeys,
}

// normalizeQuotes converts single-quoted string literals to double-quoted
// ones, escaping any double quotes embedded in the literal. Single quotes
// inside double-quoted strings (apostrophes) are left alone.
func normalizeQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inDouble := false
	inSingle := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]

		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}

		switch {
		case c == '\\':
			b.WriteByte(c)
			escaped = true

		case c == '"' && !inSingle:
			inDouble = !inDouble
			b.WriteByte(c)

		case c == '"' && inSingle:
			// Embedded double quote inside a single-quoted literal.
			b.WriteString(`\"`)

		case c == '\'' && !inDouble:
			inSingle = !inSingle
			b.WriteByte('"')

		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// trailingComma matches a comma followed only by whitespace before a closing
// bracket or brace.
var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// stripTrailingCommas removes commas that directly precede a closing bracket.
// Commas inside string literals are preserved.
func stripTrailingCommas(s string) string {
	// Split on string boundaries so the regexp never touches literal content.
	var b strings.Builder
	b.Grow(len(s))

	segStart := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '"' {
			continue
		}
		b.WriteString(trailingComma.ReplaceAllString(s[segStart:i], "$1"))

		// Copy the string literal verbatim; find its end.
		j := stringEnd(s, i)
		if j < 0 {
			// Unterminated string; emit the rest untouched.
			b.WriteString(s[i:])
			return b.String()
		}
		b.WriteString(s[i : j+1])
		i = j
		segStart = i + 1
	}
	b.WriteString(trailingComma.ReplaceAllString(s[segStart:], "$1"))
	return b.String()
}

// stringEnd returns the index of the closing quote for the string literal
// opening at s[start], honouring backslash escapes, or -1 when unterminated.
func stringEnd(s string, start int) int {
	escaped := false
	for j := start + 1; j < len(s); j++ {
		switch {
		case escaped:
			escaped = false
		case s[j] == '\\':
			escaped = true
		case s[j] == '"':
			return j
		}
	}
	return -1
}

// bareKey matches an unquoted identifier key position: a '{' or ',' followed
// by an identifier and a ':'.
var bareKey = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)

// quoteBareKeys wraps unquoted identifier keys in double quotes. Identifiers
// inside string literals are preserved.
func quoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	segStart := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '"' {
			continue
		}
		b.WriteString(bareKey.ReplaceAllString(s[segStart:i], `$1"$2"$3`))

		j := stringEnd(s, i)
		if j < 0 {
			b.WriteString(s[i:])
			return b.String()
		}
		b.WriteString(s[i : j+1])
		i = j
		segStart = i + 1
	}
	b.WriteString(bareKey.ReplaceAllString(s[segStart:], `$1"$2"$3`))
	return b.String()
}
