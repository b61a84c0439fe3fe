package domain

import (
	"fmt"
	"time"
)

// MessageRole identifies the author of a conversation turn
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message represents a single persisted conversation turn for a document.
// Within a document, messages are totally ordered by (created_at, id) and
// served newest-first. The store is append-only; messages are only removed
// when their document is deleted.
type Message struct {
	ID         string
	DocumentID string
	UserID     string
	Role       MessageRole
	Text       string
	CreatedAt  time.Time
}

// NewMessage creates a new Message instance
func NewMessage(id, documentID, userID string, role MessageRole, text string, createdAt time.Time) *Message {
	return &Message{
		ID:         id,
		DocumentID: documentID,
		UserID:     userID,
		Role:       role,
		Text:       text,
		CreatedAt:  createdAt,
	}
}

// ValidateMessage validates a Message instance
func ValidateMessage(m *Message) error {
	if m == nil {
		return fmt.Errorf("message cannot be nil")
	}

	if m.ID == "" {
		return fmt.Errorf("message ID is required")
	}

	if m.DocumentID == "" {
		return fmt.Errorf("message DocumentID is required")
	}

	if m.Text == "" {
		return fmt.Errorf("message Text is required")
	}

	if !isValidMessageRole(m.Role) {
		return fmt.Errorf("message Role is invalid: %s", m.Role)
	}

	return nil
}

// isValidMessageRole checks if a MessageRole is valid
func isValidMessageRole(r MessageRole) bool {
	switch r {
	case MessageRoleUser, MessageRoleAssistant:
		return true
	}
	return false
}
