package tokens

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	shortWordMaxLen = 2
	longWordMinLen  = 8

	shortWordTokens  = 0.5
	mediumWordTokens = 1.0
	longWordTokens   = 1.5
)

// Estimate returns the approximate token count of text.
// Words are split on whitespace and the punctuation in delimiters.
func Estimate(text string) float64 {
	total := 0.0
	for _, word := range strings.FieldsFunc(text, isDelimiter) {
		total += wordTokens(word)
	}
	return total
}

// Estimator adapts Estimate to callers that hold an estimator value.
type Estimator struct{}

// Count returns the approximate token count of text.
func (Estimator) Count(text string) float64 {
	return Estimate(text)
}

// FitsInLimit reports whether text is within limit tokens.
func (Estimator) FitsInLimit(text string, limit float64) bool {
	return Estimate(text) <= limit
}

func wordTokens(word string) float64 {
	n := utf8.RuneCountInString(word)
	switch {
	case n <= shortWordMaxLen:
		return shortWordTokens
	case n >= longWordMinLen:
		return longWordTokens
	default:
		return mediumWordTokens
	}
}

func isDelimiter(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case ',', '.', '!', '?', ';', ':', '\'', '"', '(', ')', '[', ']', '{', '}':
		return true
	}
	return false
}
