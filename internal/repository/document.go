package repository

import (
	"context"
	"errors"
	"time"

	"github.com/inkwell-labs/quill/internal/domain"
	"github.com/inkwell-labs/quill/internal/pagination"
	"github.com/inkwell-labs/quill/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, user_id, name, text, status, storage_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.UserID, d.Name, d.Text, d.Status, nullableString(d.StorageKey), d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return r.scanOne(ctx,
		`SELECT id, user_id, name, text, status, storage_key, created_at, updated_at
		 FROM documents WHERE id = $1`,
		id,
	)
}

// GetByIDForUser returns the document only when it exists and is owned by
// the given user; an unowned document is indistinguishable from a missing
// one.
func (r *DocumentRepository) GetByIDForUser(ctx context.Context, id, userID string) (*domain.Document, error) {
	return r.scanOne(ctx,
		`SELECT id, user_id, name, text, status, storage_key, created_at, updated_at
		 FROM documents WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
}

func (r *DocumentRepository) ListByUserWithCursor(ctx context.Context, userID string, cursor *pagination.Cursor, limit int) (*service.DocumentPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, user_id, name, text, status, storage_key, created_at, updated_at
			 FROM documents
			 WHERE user_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			userID, cursor.CreatedAt, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, user_id, name, text, status, storage_key, created_at, updated_at
			 FROM documents
			 WHERE user_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			userID, limit+1,
		)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanDocumentRows(rows)
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

	return &service.DocumentPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) UpdateStorageKey(ctx context.Context, id, storageKey string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET storage_key = $1, updated_at = $2 WHERE id = $3`,
		nullableString(storageKey), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// Delete removes the document; segments and messages cascade via foreign keys.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM documents WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) scanOne(ctx context.Context, query string, args ...any) (*domain.Document, error) {
	var d domain.Document
	var storageKey *string
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&d.ID, &d.UserID, &d.Name, &d.Text, &d.Status, &storageKey, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	if storageKey != nil {
		d.StorageKey = *storageKey
	}
	return &d, nil
}

func scanDocumentRows(rows pgx.Rows) ([]*domain.Document, error) {
	var results []*domain.Document
	for rows.Next() {
		var d domain.Document
		var storageKey *string
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Text, &d.Status, &storageKey, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if storageKey != nil {
			d.StorageKey = *storageKey
		}
		results = append(results, &d)
	}
	return results, rows.Err()
}
