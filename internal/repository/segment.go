package repository

import (
	"context"
	"time"

	"github.com/inkwell-labs/quill/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// SegmentRepository handles persistence of embedded document segments.
type SegmentRepository struct {
	db dbtx
}

func NewSegmentRepository(pool *pgxpool.Pool) *SegmentRepository {
	return &SegmentRepository{db: pool}
}

func NewSegmentRepositoryWithTx(tx pgx.Tx) *SegmentRepository {
	return &SegmentRepository{db: tx}
}

// ReplaceSegments deletes existing segments for a document and inserts new
// ones, so re-indexing never accumulates duplicates.
func (r *SegmentRepository) ReplaceSegments(ctx context.Context, documentID string, segments []domain.Segment) error {
	_, err := r.db.Exec(ctx, `DELETE FROM segments WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}

	if len(segments) == 0 {
		return nil
	}

	for _, s := range segments {
		createdAt := s.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO segments (id, document_id, segment_index, text, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			s.ID,
			s.DocumentID,
			s.SegmentIndex,
			s.Text,
			pgvector.NewVector(s.Embedding),
			createdAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// SearchByEmbedding returns the k nearest segments of a document by cosine
// distance. Ties are broken by ascending segment index, which keeps results
// deterministic for identical inputs.
func (r *SegmentRepository) SearchByEmbedding(ctx context.Context, documentID string, embedding []float32, k int) ([]*domain.ScoredSegment, error) {
	vec := pgvector.NewVector(embedding)

	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, segment_index, text,
		        1.0 / (1.0 + (embedding <=> $1)) AS score
		 FROM segments
		 WHERE document_id = $2
		 ORDER BY embedding <=> $1 ASC, segment_index ASC
		 LIMIT $3`,
		vec, documentID, k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*domain.ScoredSegment, 0, k)
	for rows.Next() {
		var seg domain.Segment
		var score float32
		if err := rows.Scan(&seg.ID, &seg.DocumentID, &seg.SegmentIndex, &seg.Text, &score); err != nil {
			return nil, err
		}
		results = append(results, &domain.ScoredSegment{Segment: &seg, Score: score})
	}
	return results, rows.Err()
}

func (r *SegmentRepository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM segments WHERE document_id = $1`,
		documentID,
	).Scan(&count)
	return count, err
}
