package repository

import (
	"context"
	"errors"

	"github.com/inkwell-labs/quill/internal/domain"
	"github.com/inkwell-labs/quill/internal/pagination"
	"github.com/inkwell-labs/quill/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository is the append-only conversation log per document.
type MessageRepository struct {
	db dbtx
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: pool}
}

func NewMessageRepositoryWithTx(tx pgx.Tx) *MessageRepository {
	return &MessageRepository{db: tx}
}

func (r *MessageRepository) Create(ctx context.Context, m *domain.Message) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO messages (id, document_id, user_id, role, text, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.DocumentID, m.UserID, m.Role, m.Text, m.CreatedAt,
	)
	return err
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var m domain.Message
	err := r.db.QueryRow(ctx,
		`SELECT id, document_id, user_id, role, text, created_at
		 FROM messages WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.DocumentID, &m.UserID, &m.Role, &m.Text, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ListByDocumentWithCursor pages through a document's messages newest-first.
// The cursor bounds on (created_at, id), so a page is always "everything
// older than this point" and appends after the cursor was issued never skip
// or duplicate a message.
func (r *MessageRepository) ListByDocumentWithCursor(ctx context.Context, documentID string, cursor *pagination.Cursor, limit int) (*service.MessagePageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, document_id, user_id, role, text, created_at
			 FROM messages
			 WHERE document_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			documentID, cursor.CreatedAt, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, document_id, user_id, role, text, created_at
			 FROM messages
			 WHERE document_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			documentID, limit+1,
		)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanMessageRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		lastItem := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(lastItem.ID, lastItem.CreatedAt)
	}

	return &service.MessagePageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListRecent returns the latest messages oldest-first, for prompt history.
func (r *MessageRepository) ListRecent(ctx context.Context, documentID string, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 6
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, user_id, role, text, created_at
		 FROM (
			 SELECT id, document_id, user_id, role, text, created_at
			 FROM messages
			 WHERE document_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2
		 ) recent
		 ORDER BY created_at ASC, id ASC`,
		documentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessageRows(rows)
}

func scanMessageRows(rows pgx.Rows) ([]*domain.Message, error) {
	var results []*domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.UserID, &m.Role, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, &m)
	}
	return results, rows.Err()
}
