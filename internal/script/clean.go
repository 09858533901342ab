// Package script turns the raw, possibly malformed step-data source stored
// on a tour into a valid player script. Authors paste scripts from many
// places, so the cleaner is deliberately forgiving: it normalizes the known
// classes of damage deterministically and only then validates.
package script

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.elara.ws/pcre"
)

// Compiled regex cache. Several cleaning passes need lookbehind/lookahead
// assertions, which the standard regexp package cannot express.
type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *regexCache {
	return &regexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	// Double-check pattern
	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

var cache = newRegexCache()

func replaceAll(pattern, input, replacement string) string {
	regex, err := cache.get(pattern)
	if err != nil {
		return input
	}
	return regex.ReplaceAllString(input, replacement)
}

// Clean normalizes a raw script string into well-formed JSON-array syntax.
// The passes run in a fixed order so the result is deterministic:
// backslash normalization, bare-quote escaping, whitespace collapse, token
// normalization, punctuation tightening, trailing-comma removal and final
// array wrapping.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	// Doubled backslashes from copy-pasted escaping
	s = strings.ReplaceAll(s, `\\`, `\`)

	s = escapeBareQuotes(s)

	// Collapse all whitespace runs (including newlines) to single spaces
	s = replaceAll(`\s+`, s, " ")

	// Non-JSON literals that leak out of spreadsheet exports
	s = replaceAll(`(?<=[:,\[ ])NaN(?=[ ,}\]])`, s, "null")
	s = replaceAll(`(?<=[:,\[ ])-Infinity(?=[ ,}\]])`, s, "null")
	s = replaceAll(`(?<=[:,\[ ])Infinity(?=[ ,}\]])`, s, "null")
	s = replaceAll(`(?<=[:,\[ ])True(?=[ ,}\]])`, s, "true")
	s = replaceAll(`(?<=[:,\[ ])False(?=[ ,}\]])`, s, "false")

	// Strip whitespace adjacent to structural punctuation
	s = replaceAll(` ?([{}\[\]:,]) ?`, s, "$1")

	// Trailing commas before closing braces/brackets
	s = replaceAll(`,(?=[}\]])`, s, "")

	// Adjacent un-bracketed top-level objects
	s = strings.ReplaceAll(s, "}{", "},{")

	// Ensure the whole string is a JSON array
	if strings.HasPrefix(s, "{") {
		s = "[" + s + "]"
	}

	return s
}

// EmptyScriptError reports a tour with neither a raw script nor any steps
// to render one from.
type EmptyScriptError struct {
	TourID int64
}

func (e *EmptyScriptError) Error() string {
	return fmt.Sprintf("tour %d has no script", e.TourID)
}

// Parse cleans and validates a raw script. A script that does not survive
// cleaning is reported as unavailable, never as a user-facing error.
func Parse(raw string) (string, error) {
	cleaned := Clean(raw)
	if cleaned == "" {
		return "", fmt.Errorf("script is empty")
	}

	var parsed []map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return "", fmt.Errorf("script is not valid JSON after cleaning: %w", err)
	}

	return cleaned, nil
}

// escapeBareQuotes escapes double quotes that sit inside string values.
// A quote counts as structural when its nearest non-space neighbour on the
// left opens a value ({, [, comma, colon, or nothing) or on the right
// closes one (colon, comma, }, ], or nothing); everything else gets
// escaped. The heuristic is intentionally crude and mirrors the shape of
// damage seen in authored scripts.
func escapeBareQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	runes := []rune(s)
	for i, r := range runes {
		if r != '"' {
			b.WriteRune(r)
			continue
		}

		if i > 0 && runes[i-1] == '\\' {
			b.WriteRune(r)
			continue
		}

		if quoteIsStructural(runes, i) {
			b.WriteRune(r)
			continue
		}

		b.WriteString(`\"`)
	}

	return b.String()
}

func quoteIsStructural(runes []rune, pos int) bool {
	prev := previousNonSpace(runes, pos)
	if prev == 0 || strings.ContainsRune("{[,:", prev) {
		return true
	}

	next := nextNonSpace(runes, pos)
	if next == 0 || strings.ContainsRune(":,}]", next) {
		return true
	}

	return false
}

func previousNonSpace(runes []rune, pos int) rune {
	for i := pos - 1; i >= 0; i-- {
		if runes[i] != ' ' && runes[i] != '\t' && runes[i] != '\n' && runes[i] != '\r' {
			return runes[i]
		}
	}
	return 0
}

func nextNonSpace(runes []rune, pos int) rune {
	for i := pos + 1; i < len(runes); i++ {
		if runes[i] != ' ' && runes[i] != '\t' && runes[i] != '\n' && runes[i] != '\r' {
			return runes[i]
		}
	}
	return 0
}
