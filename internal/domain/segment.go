package domain

import "time"

// Segment represents a bounded span of a document's text with its embedding
// vector, the unit of retrieval. Segments are immutable; re-indexing a
// document replaces its full segment set. Segment indexes within a document
// are unique and ascending; the text spans of neighbouring segments may
// overlap so no fact is fully cut off at a boundary.
type Segment struct {
	ID           string
	DocumentID   string
	SegmentIndex int
	Text         string
	Embedding    []float32
	CreatedAt    time.Time
}

// ScoredSegment pairs a segment with its similarity score for a query.
// Retrieval results are ephemeral and never persisted.
type ScoredSegment struct {
	Segment *Segment
	Score   float32
}
