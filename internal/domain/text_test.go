package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", 310)

	got := Truncate(long, 300)

	assert.Equal(t, 300, utf8.RuneCountInString(got))
	assert.Equal(t, strings.Repeat("a", 297)+"...", got)
}

func TestTruncate_ShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 280))
	assert.Equal(t, strings.Repeat("b", 280), Truncate(strings.Repeat("b", 280), 280))
}

func TestTruncate_CountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("é", 281)

	got := Truncate(text, 280)

	assert.Equal(t, 280, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, TruncationMarker))
}

func TestWithURL(t *testing.T) {
	assert.Equal(t, "hello\n\nhttps://a.b", WithURL("hello", "https://a.b"))
	assert.Equal(t, "see https://a.b", WithURL("see https://a.b", "https://a.b"))
	assert.Equal(t, "hello", WithURL("hello", ""))
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"first sentence", "We shipped hooks. Details below!", "We shipped hooks"},
		{"newline ends sentence", "  New release  \nmore text", "New release"},
		{"no terminator", "just words", "just words"},
		{"long sentence", strings.Repeat("x", 130), strings.Repeat("x", 117) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.in))
		})
	}
}

func TestCompose_KeepsURLWhole(t *testing.T) {
	url := "https://example.com/post"
	text := strings.Repeat("w", 300)

	got := Compose(text, url, 280)

	assert.Equal(t, 280, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "...\n\n"+url))
	assert.Equal(t, "hi\n\n"+url, Compose("hi", url, 280))
	assert.Equal(t, "hi", Compose("hi", "", 280))
}
