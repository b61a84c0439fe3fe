package service

import (
	"context"

	"github.com/inkwell-labs/quill/internal/domain"
	"github.com/inkwell-labs/quill/internal/telemetry"
)

const (
	minTopK = 1
	maxTopK = 20
)

// RetrieverService finds the document segments closest to a query embedding.
type RetrieverService struct {
	segmentRepo SegmentRepositoryInterface
}

func NewRetrieverService(segmentRepo SegmentRepositoryInterface) *RetrieverService {
	return &RetrieverService{segmentRepo: segmentRepo}
}

// Retrieve returns up to k segments ordered by descending relevance.
// k is clamped to [1, 20]. A document with no indexed segments yields an
// empty result, not an error.
func (s *RetrieverService) Retrieve(ctx context.Context, documentID string, queryEmbedding []float32, k int) ([]*domain.ScoredSegment, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrieverService.Retrieve", telemetry.SpanAttributes{
		DocumentID: documentID,
	})
	defer span.End()

	if documentID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document ID is required")
	}
	if len(queryEmbedding) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "query embedding is required")
	}

	if k < minTopK {
		k = minTopK
	}
	if k > maxTopK {
		k = maxTopK
	}

	results, err := s.segmentRepo.SearchByEmbedding(ctx, documentID, queryEmbedding, k)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return results, nil
}
