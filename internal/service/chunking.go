package service

import (
	"strings"
	"unicode"
)

// SegmentConfig controls how document text is split before embedding.
type SegmentConfig struct {
	MaxChars    int
	MinChars    int
	Overlap     int
	MaxSegments int
}

// DefaultSegmentConfig provides sane defaults for segmentation.
func DefaultSegmentConfig() SegmentConfig {
	return SegmentConfig{
		MaxChars:    1200,
		MinChars:    400,
		Overlap:     200,
		MaxSegments: 200,
	}
}

// splitText cuts text into overlapping segments, preferring word boundaries.
// Each segment is at most MaxChars runes; consecutive segments share Overlap
// runes so no sentence is lost across a boundary.
func splitText(text string, cfg SegmentConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg = DefaultSegmentConfig()
	}
	runes := []rune(clean)
	if len(runes) <= cfg.MaxChars {
		return []string{clean}
	}

	segments := make([]string, 0, 8)
	start := 0
	for start < len(runes) {
		if cfg.MaxSegments > 0 && len(segments) >= cfg.MaxSegments {
			break
		}

		end := start + cfg.MaxChars
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			cut := end
			minCut := start + cfg.MinChars
			if minCut > end {
				minCut = start
			}
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
			end = cut
		}

		if end <= start {
			break
		}

		segment := strings.TrimSpace(string(runes[start:end]))
		if segment != "" {
			segments = append(segments, segment)
		}

		if end >= len(runes) {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 {
			if end-start > cfg.Overlap {
				nextStart = end - cfg.Overlap
			}
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return segments
}
