package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitText_Empty(t *testing.T) {
	assert.Nil(t, splitText("", DefaultSegmentConfig()))
	assert.Nil(t, splitText("   \n\t  ", DefaultSegmentConfig()))
}

func TestSplitText_ShortTextSingleSegment(t *testing.T) {
	text := "A short paragraph that fits in one segment."

	segments := splitText(text, DefaultSegmentConfig())

	assert.Equal(t, []string{text}, segments)
}

func TestSplitText_LongTextProducesOverlap(t *testing.T) {
	cfg := SegmentConfig{MaxChars: 100, MinChars: 40, Overlap: 20, MaxSegments: 0}
	text := strings.Repeat("lorem ipsum dolor sit amet ", 40)

	segments := splitText(text, cfg)

	assert.Greater(t, len(segments), 1)
	for _, seg := range segments {
		assert.LessOrEqual(t, len([]rune(seg)), cfg.MaxChars)
		assert.NotEqual(t, "", strings.TrimSpace(seg))
	}

	// Consecutive segments share text because of the overlap.
	first := segments[0]
	tail := first[len(first)-10:]
	assert.Contains(t, text, tail)
	assert.Contains(t, segments[1], strings.TrimSpace(tail))
}

func TestSplitText_PrefersWordBoundary(t *testing.T) {
	cfg := SegmentConfig{MaxChars: 50, MinChars: 10, Overlap: 0, MaxSegments: 0}
	text := "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu"

	segments := splitText(text, cfg)

	for _, seg := range segments {
		assert.False(t, strings.HasSuffix(seg, " "))
		for _, word := range strings.Fields(seg) {
			assert.Contains(t, text, word)
		}
	}
}

func TestSplitText_MaxSegmentsCap(t *testing.T) {
	cfg := SegmentConfig{MaxChars: 10, MinChars: 2, Overlap: 0, MaxSegments: 3}
	text := strings.Repeat("word ", 100)

	segments := splitText(text, cfg)

	assert.Len(t, segments, 3)
}

func TestSplitText_ZeroConfigFallsBackToDefaults(t *testing.T) {
	text := strings.Repeat("x", 5000)

	segments := splitText(text, SegmentConfig{})

	assert.NotEmpty(t, segments)
	for _, seg := range segments {
		assert.LessOrEqual(t, len([]rune(seg)), DefaultSegmentConfig().MaxChars)
	}
}
