package domain

import (
	"fmt"
	"strings"
	"time"
)

// DocumentStatus represents the ingestion status of a document
type DocumentStatus string

const (
	DocumentStatusPending   DocumentStatus = "pending"
	DocumentStatusProcessed DocumentStatus = "processed"
	DocumentStatusFailed    DocumentStatus = "failed"
)

// Document represents an uploaded document owned by a user. The extracted
// text is immutable once the document has been processed; only the status
// may transition afterwards (e.g. failed -> pending on re-ingestion).
type Document struct {
	ID         string
	UserID     string
	Name       string
	Text       string
	Status     DocumentStatus
	StorageKey string // Object key of the original file blob, empty for text-only documents
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewDocument creates a new Document instance in pending status
func NewDocument(id, userID, name, text string, createdAt time.Time) *Document {
	return &Document{
		ID:        id,
		UserID:    userID,
		Name:      name,
		Text:      text,
		Status:    DocumentStatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// HasText reports whether the document carries any extractable text.
func (d *Document) HasText() bool {
	return strings.TrimSpace(d.Text) != ""
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.UserID == "" {
		return fmt.Errorf("document UserID is required")
	}

	if d.Name == "" {
		return fmt.Errorf("document Name is required")
	}

	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}

	return nil
}

// isValidDocumentStatus checks if a DocumentStatus is valid
func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusPending, DocumentStatusProcessed, DocumentStatusFailed:
		return true
	}
	return false
}
