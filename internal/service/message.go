package service

import (
	"context"
	"time"

	"github.com/inkwell-labs/quill/internal/domain"
	"github.com/inkwell-labs/quill/internal/pagination"
	"github.com/inkwell-labs/quill/internal/telemetry"
)

// MessageRepositoryInterface defines the repository interface for message persistence
type MessageRepositoryInterface interface {
	Create(ctx context.Context, m *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	ListByDocumentWithCursor(ctx context.Context, documentID string, cursor *pagination.Cursor, limit int) (*MessagePageResult, error)
	ListRecent(ctx context.Context, documentID string, limit int) ([]*domain.Message, error)
}

type MessagePageResult struct {
	Items      []*domain.Message
	NextCursor string
	HasMore    bool
}

// MessageService handles durable conversation history for documents.
type MessageService struct {
	messageRepo MessageRepositoryInterface
	docRepo     DocumentRepositoryInterface
	uuidGen     UUIDGenerator
	maxPageSize int
}

// NewMessageService creates a new MessageService instance
func NewMessageService(messageRepo MessageRepositoryInterface, docRepo DocumentRepositoryInterface, maxPageSize int) *MessageService {
	if maxPageSize <= 0 {
		maxPageSize = 50
	}
	return &MessageService{
		messageRepo: messageRepo,
		docRepo:     docRepo,
		uuidGen:     &DefaultUUIDGenerator{},
		maxPageSize: maxPageSize,
	}
}

// NewMessageServiceWithUUIDGen creates a MessageService with a custom UUID
// generator (for testing).
func NewMessageServiceWithUUIDGen(messageRepo MessageRepositoryInterface, docRepo DocumentRepositoryInterface, maxPageSize int, uuidGen UUIDGenerator) *MessageService {
	s := NewMessageService(messageRepo, docRepo, maxPageSize)
	s.uuidGen = uuidGen
	return s
}

// AppendInput represents the input for appending a message
type AppendInput struct {
	DocumentID string
	UserID     string
	Role       domain.MessageRole
	Text       string
}

// Append durably stores one message on a document's conversation. A document
// that does not exist, or is owned by someone else, yields not-found either
// way so callers cannot probe for other users' documents.
func (s *MessageService) Append(ctx context.Context, input AppendInput) (*domain.Message, error) {
	ctx, span := telemetry.StartSpan(ctx, "MessageService.Append", telemetry.SpanAttributes{
		UserID:     input.UserID,
		DocumentID: input.DocumentID,
	})
	defer span.End()

	if _, err := s.docRepo.GetByIDForUser(ctx, input.DocumentID, input.UserID); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:         s.uuidGen.NewString(),
		DocumentID: input.DocumentID,
		UserID:     input.UserID,
		Role:       input.Role,
		Text:       input.Text,
		CreatedAt:  time.Now().UTC(),
	}

	if err := domain.ValidateMessage(msg); err != nil {
		return nil, err
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		span.SetError(err)
		return nil, err
	}

	return msg, nil
}

// ListMessagesInput represents the input for listing messages
type ListMessagesInput struct {
	DocumentID string
	UserID     string
	Cursor     string
	Limit      int
}

// ListMessagesOutput represents one page of a document's conversation,
// newest message first.
type ListMessagesOutput struct {
	Items   []*domain.Message
	Cursor  string
	HasMore bool
}

// List returns a page of the document's messages in reverse chronological
// order. The limit is clamped to the configured maximum page size; an absent
// cursor starts from the newest message.
func (s *MessageService) List(ctx context.Context, input ListMessagesInput) (*ListMessagesOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "MessageService.List", telemetry.SpanAttributes{
		UserID:     input.UserID,
		DocumentID: input.DocumentID,
	})
	defer span.End()

	if _, err := s.docRepo.GetByIDForUser(ctx, input.DocumentID, input.UserID); err != nil {
		return nil, err
	}

	limit := input.Limit
	if limit <= 0 {
		limit = s.maxPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	var cursor *pagination.Cursor
	if input.Cursor != "" {
		decoded, err := pagination.DecodeCursor(input.Cursor)
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
		}
		cursor = decoded
	}

	page, err := s.messageRepo.ListByDocumentWithCursor(ctx, input.DocumentID, cursor, limit)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return &ListMessagesOutput{
		Items:   page.Items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	}, nil
}
