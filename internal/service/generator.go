package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/inkwell-labs/quill/internal/domain"
	"github.com/inkwell-labs/quill/internal/openai"
	"github.com/inkwell-labs/quill/internal/telemetry"
)

// ChatClient defines the interface for streaming chat completions
type ChatClient interface {
	StreamCompletion(ctx context.Context, messages []openai.ChatMessage) (openai.ChatStream, error)
}

// RetrieverInterface defines the retrieval step the generator depends on
type RetrieverInterface interface {
	Retrieve(ctx context.Context, documentID string, queryEmbedding []float32, k int) ([]*domain.ScoredSegment, error)
}

// GeneratorMessageRepository defines the message persistence the generator needs
type GeneratorMessageRepository interface {
	Create(ctx context.Context, m *domain.Message) error
	ListRecent(ctx context.Context, documentID string, limit int) ([]*domain.Message, error)
}

// GeneratorService answers a question about a document by retrieving the
// most relevant segments and streaming a grounded chat completion.
type GeneratorService struct {
	embedder     EmbeddingClient
	chat         ChatClient
	retriever    RetrieverInterface
	messageRepo  GeneratorMessageRepository
	uuidGen      UUIDGenerator
	topK         int
	historyTurns int
	retryDelay   time.Duration
}

// NewGeneratorService creates a new GeneratorService instance
func NewGeneratorService(
	embedder EmbeddingClient,
	chat ChatClient,
	retriever RetrieverInterface,
	messageRepo GeneratorMessageRepository,
	topK int,
	historyTurns int,
) *GeneratorService {
	if topK <= 0 {
		topK = 4
	}
	if historyTurns <= 0 {
		historyTurns = 6
	}
	return &GeneratorService{
		embedder:     embedder,
		chat:         chat,
		retriever:    retriever,
		messageRepo:  messageRepo,
		uuidGen:      &DefaultUUIDGenerator{},
		topK:         topK,
		historyTurns: historyTurns,
		retryDelay:   500 * time.Millisecond,
	}
}

// NewGeneratorServiceWithUUIDGen creates a GeneratorService with a custom
// UUID generator (for testing).
func NewGeneratorServiceWithUUIDGen(
	embedder EmbeddingClient,
	chat ChatClient,
	retriever RetrieverInterface,
	messageRepo GeneratorMessageRepository,
	topK int,
	historyTurns int,
	uuidGen UUIDGenerator,
) *GeneratorService {
	s := NewGeneratorService(embedder, chat, retriever, messageRepo, topK, historyTurns)
	s.uuidGen = uuidGen
	return s
}

// SetRetryDelay overrides the embedding retry backoff (for testing).
func (s *GeneratorService) SetRetryDelay(d time.Duration) {
	s.retryDelay = d
}

// AnswerInput represents the input for answering a question
type AnswerInput struct {
	DocumentID string
	UserID     string
	Question   string
}

// Answer streams the generated answer fragment by fragment through emit and,
// once the stream completes cleanly, persists the concatenated answer as an
// assistant message. A provider failure mid-stream aborts without persisting:
// whatever emit already delivered stays delivered, but it is not an answer.
func (s *GeneratorService) Answer(ctx context.Context, input AnswerInput, emit func(fragment string) error) (*domain.Message, error) {
	ctx, span := telemetry.StartSpan(ctx, "GeneratorService.Answer", telemetry.SpanAttributes{
		UserID:     input.UserID,
		DocumentID: input.DocumentID,
	})
	defer span.End()

	if strings.TrimSpace(input.Question) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "question is required")
	}

	queryEmbedding, err := embedWithRetry(ctx, s.embedder, input.Question, s.retryDelay)
	if err != nil {
		wrapped := domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, "embedding provider unavailable", err)
		span.SetError(wrapped)
		return nil, wrapped
	}

	segments, err := s.retriever.Retrieve(ctx, input.DocumentID, queryEmbedding, s.topK)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	history, err := s.messageRepo.ListRecent(ctx, input.DocumentID, s.historyTurns*2)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	prompt := buildPrompt(segments, history, input.Question)

	stream, err := s.chat.StreamCompletion(ctx, prompt)
	if err != nil {
		wrapped := domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, "chat provider unavailable", err)
		span.SetError(wrapped)
		return nil, wrapped
	}
	defer stream.Close()

	var answer strings.Builder
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			wrapped := domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, "answer generation aborted", err)
			span.SetError(wrapped)
			return nil, wrapped
		}
		if fragment == "" {
			continue
		}
		answer.WriteString(fragment)
		if err := emit(fragment); err != nil {
			span.SetError(err)
			return nil, err
		}
	}

	msg := &domain.Message{
		ID:         s.uuidGen.NewString(),
		DocumentID: input.DocumentID,
		UserID:     input.UserID,
		Role:       domain.MessageRoleAssistant,
		Text:       answer.String(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		span.SetError(err)
		return nil, err
	}

	return msg, nil
}

// buildPrompt assembles the grounded conversation sent to the chat model:
// a system message with the retrieved excerpts in retrieval order, the
// recent history, and the question last.
func buildPrompt(segments []*domain.ScoredSegment, history []*domain.Message, question string) []openai.ChatMessage {
	var sys strings.Builder
	sys.WriteString("You answer questions about a single document. ")
	sys.WriteString("Use the excerpts below, and the prior conversation when it helps, to answer in markdown. ")
	sys.WriteString("If the excerpts do not contain the answer, say you don't know. Do not make anything up.\n\n")

	if len(segments) == 0 {
		sys.WriteString("No relevant excerpts were found for this question. Say so, and answer from the conversation only if you can.")
	} else {
		sys.WriteString("Excerpts:\n\n")
		for i, seg := range segments {
			sys.WriteString(fmt.Sprintf("[%d] %s\n\n", i+1, seg.Segment.Text))
		}
	}

	// The question is persisted before generation starts, so it comes back
	// as the newest history entry. Drop it here, it goes in as the final
	// user turn below.
	if n := len(history); n > 0 && history[n-1].Role == domain.MessageRoleUser && history[n-1].Text == question {
		history = history[:n-1]
	}

	messages := make([]openai.ChatMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatMessage{
		Role:    openai.RoleSystem,
		Content: sys.String(),
	})

	for _, m := range history {
		role := openai.RoleUser
		if m.Role == domain.MessageRoleAssistant {
			role = openai.RoleAssistant
		}
		messages = append(messages, openai.ChatMessage{
			Role:    role,
			Content: m.Text,
		})
	}

	messages = append(messages, openai.ChatMessage{
		Role:    openai.RoleUser,
		Content: question,
	})

	return messages
}
