// Package segmenter splits message text into sentence-like units.
package segmenter

import (
	"strings"
	"unicode"
)

// Split cuts text after every '.', '!' or '?' that is immediately followed by
// whitespace. Segments are trimmed and empty ones dropped, so blank or
// punctuation-only text yields no segments.
func Split(text string) []string {
	var segments []string

	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		if !isTerminator(runes[i]) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		segments = appendSegment(segments, string(runes[start:i+1]))
		start = i + 1
	}
	segments = appendSegment(segments, string(runes[start:]))

	return segments
}

func appendSegment(segments []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || isPunctuationOnly(s) {
		return segments
	}
	return append(segments, s)
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isPunctuationOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
