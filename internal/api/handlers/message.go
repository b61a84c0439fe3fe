package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/inkwell-labs/quill/internal/api"
	"github.com/inkwell-labs/quill/internal/api/middleware"
	"github.com/inkwell-labs/quill/internal/domain"
	"github.com/inkwell-labs/quill/internal/service"
)

type MessageService interface {
	Append(ctx context.Context, input service.AppendInput) (*domain.Message, error)
	List(ctx context.Context, input service.ListMessagesInput) (*service.ListMessagesOutput, error)
}

type AnswerGenerator interface {
	Answer(ctx context.Context, input service.AnswerInput, emit func(fragment string) error) (*domain.Message, error)
}

type MessageHandler struct {
	messages  MessageService
	generator AnswerGenerator
}

func NewMessageHandler(messages MessageService, generator AnswerGenerator) *MessageHandler {
	return &MessageHandler{messages: messages, generator: generator}
}

type AskRequest struct {
	Question string `json:"question"`
}

// Ask persists the question, then streams the generated answer back as
// text/plain fragments. The stream ends at EOF. A failure after the first
// fragment cannot be signalled in the status code, so the connection is
// aborted instead: the client must see a read error, never a clean EOF it
// would mistake for a complete answer.
func (h *MessageHandler) Ask(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	documentID := chi.URLParam(r, "id")
	if documentID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}

	// The user's message is durable before generation starts. Ownership is
	// checked here: an unknown or unowned document 404s without leaking
	// whether it exists.
	if _, err := h.messages.Append(r.Context(), service.AppendInput{
		DocumentID: documentID,
		UserID:     userID,
		Role:       domain.MessageRoleUser,
		Text:       req.Question,
	}); err != nil {
		api.HandleError(w, err)
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false

	_, err := h.generator.Answer(r.Context(), service.AnswerInput{
		DocumentID: documentID,
		UserID:     userID,
		Question:   req.Question,
	}, func(fragment string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(fragment)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		if !started {
			api.HandleError(w, err)
			return
		}
		// The 200 and a partial body are already on the wire. Drop the
		// connection so the client's body read fails instead of ending at
		// a clean EOF.
		panic(http.ErrAbortHandler)
	}

	if !started {
		// Model produced no text at all; still a successful, empty answer.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}
}

type MessageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

func messageToResponse(m *domain.Message) *MessageResponse {
	return &MessageResponse{
		ID:        m.ID,
		Role:      string(m.Role),
		Text:      m.Text,
		CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
	}
}

type ListMessagesResponse struct {
	Items   []*MessageResponse `json:"items"`
	Cursor  string             `json:"cursor,omitempty"`
	HasMore bool               `json:"has_more"`
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	documentID := chi.URLParam(r, "id")
	if documentID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	out, err := h.messages.List(r.Context(), service.ListMessagesInput{
		DocumentID: documentID,
		UserID:     userID,
		Cursor:     r.URL.Query().Get("cursor"),
		Limit:      limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*MessageResponse, 0, len(out.Items))
	for _, m := range out.Items {
		items = append(items, messageToResponse(m))
	}

	api.Success(w, http.StatusOK, ListMessagesResponse{
		Items:   items,
		Cursor:  out.Cursor,
		HasMore: out.HasMore,
	})
}
