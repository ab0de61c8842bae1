package domain

import (
	"strings"
	"unicode/utf8"
)

// TruncationMarker replaces the tail of text cut to a platform limit.
const TruncationMarker = "..."

// Truncate cuts text to at most limit runes. Longer text keeps its first
// limit-3 runes followed by TruncationMarker.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	keep := limit - utf8.RuneCountInString(TruncationMarker)
	if keep < 0 {
		keep = 0
	}
	return string([]rune(text)[:keep]) + TruncationMarker
}

// WithURL appends url on its own paragraph unless text already contains it.
func WithURL(text, url string) string {
	if url == "" || strings.Contains(text, url) {
		return text
	}
	return text + "\n\n" + url
}

// Compose fits text plus an optional url into limit runes. The url is kept
// whole and the text is truncated around it.
func Compose(text, url string, limit int) string {
	if url == "" || strings.Contains(text, url) {
		return Truncate(text, limit)
	}
	room := limit - utf8.RuneCountInString(url) - 2
	if room <= utf8.RuneCountInString(TruncationMarker) {
		return Truncate(WithURL(text, url), limit)
	}
	return WithURL(Truncate(text, room), url)
}

const summaryLimit = 120

// Summarize returns the first sentence of text, cut to 120 runes with
// TruncationMarker when longer.
func Summarize(text string) string {
	end := strings.IndexAny(text, ".!?\n")
	if end >= 0 {
		text = text[:end]
	}
	return Truncate(strings.TrimSpace(text), summaryLimit)
}
