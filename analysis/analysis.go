// Package analysis converts field text into index terms.
//
// The default analyzer lowercases input and splits on any rune that is
// not a letter or a digit. It is intentionally small: lexgo's core is
// the refresh coordinator, not linguistics.
package analysis

import (
	"strings"
	"unicode"
)

// Analyzer converts text into a sequence of terms.
type Analyzer interface {
	// Analyze returns the terms for the given text, in order.
	Analyze(text string) []string
}

// Simple is the default analyzer: lowercase, split on non-alphanumeric runes.
type Simple struct{}

// Analyze implements Analyzer.
func (Simple) Analyze(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Keyword treats the entire (lowercased, trimmed) text as a single term.
// Useful for identifiers and tags.
type Keyword struct{}

// Analyze implements Analyzer.
func (Keyword) Analyze(text string) []string {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return nil
	}
	return []string{t}
}
