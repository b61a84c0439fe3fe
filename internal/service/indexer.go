package service

import (
	"context"
	"time"

	"github.com/inkwell-labs/quill/internal/domain"
	"github.com/inkwell-labs/quill/internal/telemetry"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// SegmentRepositoryInterface defines the repository interface for segment persistence
type SegmentRepositoryInterface interface {
	ReplaceSegments(ctx context.Context, documentID string, segments []domain.Segment) error
	SearchByEmbedding(ctx context.Context, documentID string, embedding []float32, k int) ([]*domain.ScoredSegment, error)
	CountByDocument(ctx context.Context, documentID string) (int, error)
}

// IndexerService splits a document into segments, embeds them, and stores
// the result so the document becomes searchable.
type IndexerService struct {
	client      EmbeddingClient
	docRepo     DocumentRepositoryInterface
	segmentRepo SegmentRepositoryInterface
	txRunner    TxRunner
	uuidGen     UUIDGenerator
	segmentCfg  SegmentConfig
	retryDelay  time.Duration
}

// NewIndexerService creates a new IndexerService instance
func NewIndexerService(
	client EmbeddingClient,
	docRepo DocumentRepositoryInterface,
	segmentRepo SegmentRepositoryInterface,
) *IndexerService {
	return &IndexerService{
		client:      client,
		docRepo:     docRepo,
		segmentRepo: segmentRepo,
		uuidGen:     &DefaultUUIDGenerator{},
		segmentCfg:  DefaultSegmentConfig(),
		retryDelay:  500 * time.Millisecond,
	}
}

// NewIndexerServiceWithUUIDGen creates an IndexerService with a custom UUID
// generator (for testing).
func NewIndexerServiceWithUUIDGen(
	client EmbeddingClient,
	docRepo DocumentRepositoryInterface,
	segmentRepo SegmentRepositoryInterface,
	uuidGen UUIDGenerator,
) *IndexerService {
	s := NewIndexerService(client, docRepo, segmentRepo)
	s.uuidGen = uuidGen
	return s
}

// NewIndexerServiceWithTx creates an IndexerService that writes segments and
// the document status inside a single transaction.
func NewIndexerServiceWithTx(
	client EmbeddingClient,
	docRepo DocumentRepositoryInterface,
	segmentRepo SegmentRepositoryInterface,
	txRunner TxRunner,
) *IndexerService {
	s := NewIndexerService(client, docRepo, segmentRepo)
	s.txRunner = txRunner
	return s
}

// SetSegmentConfig overrides the default segmentation parameters.
func (s *IndexerService) SetSegmentConfig(cfg SegmentConfig) {
	s.segmentCfg = cfg
}

// SetRetryDelay overrides the embedding retry backoff (for testing).
func (s *IndexerService) SetRetryDelay(d time.Duration) {
	s.retryDelay = d
}

// Index embeds the document's text and replaces its stored segments.
// Re-running it on the same document is safe: prior segments are replaced
// wholesale. The document status ends up processed or failed.
func (s *IndexerService) Index(ctx context.Context, documentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "IndexerService.Index", telemetry.SpanAttributes{
		DocumentID: documentID,
	})
	defer span.End()

	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		span.SetError(err)
		return err
	}

	if !doc.HasText() {
		if statusErr := s.docRepo.UpdateStatus(ctx, documentID, domain.DocumentStatusFailed); statusErr != nil {
			span.SetError(statusErr)
			return statusErr
		}
		return domain.ErrEmptyDocument
	}

	texts := splitText(doc.Text, s.segmentCfg)
	if len(texts) == 0 {
		if statusErr := s.docRepo.UpdateStatus(ctx, documentID, domain.DocumentStatusFailed); statusErr != nil {
			span.SetError(statusErr)
			return statusErr
		}
		return domain.ErrEmptyDocument
	}

	now := time.Now().UTC()
	segments := make([]domain.Segment, 0, len(texts))
	for i, text := range texts {
		embedding, err := embedWithRetry(ctx, s.client, text, s.retryDelay)
		if err != nil {
			if statusErr := s.docRepo.UpdateStatus(ctx, documentID, domain.DocumentStatusFailed); statusErr != nil {
				span.SetError(statusErr)
				return statusErr
			}
			wrapped := domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, "embedding provider unavailable", err)
			span.SetError(wrapped)
			return wrapped
		}

		segments = append(segments, domain.Segment{
			ID:           s.uuidGen.NewString(),
			DocumentID:   documentID,
			SegmentIndex: i,
			Text:         text,
			Embedding:    embedding,
			CreatedAt:    now,
		})
	}

	if s.txRunner != nil {
		return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			if err := repos.Segments().ReplaceSegments(ctx, documentID, segments); err != nil {
				return err
			}
			return repos.Documents().UpdateStatus(ctx, documentID, domain.DocumentStatusProcessed)
		})
	}

	if err := s.segmentRepo.ReplaceSegments(ctx, documentID, segments); err != nil {
		span.SetError(err)
		return err
	}

	return s.docRepo.UpdateStatus(ctx, documentID, domain.DocumentStatusProcessed)
}

// embedWithRetry calls the embedding provider, retrying once after a short
// backoff. Context cancellation is never retried.
func embedWithRetry(ctx context.Context, client EmbeddingClient, text string, delay time.Duration) ([]float32, error) {
	embedding, err := client.GenerateEmbedding(ctx, text)
	if err == nil {
		return embedding, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return client.GenerateEmbedding(ctx, text)
}
