package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle of a single question through the session.
type State string

const (
	StateIdle       State = "idle"
	StateSending    State = "sending"
	StateStreaming  State = "streaming"
	StateSettled    State = "settled"
	StateRolledBack State = "rolled_back"
)

var (
	// ErrRequestInFlight is returned when Submit, Refresh or LoadMore is
	// called while a previous question is still streaming. Any concurrent
	// mutation of the cached pages would go stale against the rollback
	// snapshot, so all three are rejected outright.
	ErrRequestInFlight = errors.New("a question is already in flight")

	// ErrEmptyQuestion is returned when the input buffer is blank on submit.
	ErrEmptyQuestion = errors.New("question is empty")
)

// AnswerStream is an incremental read handle over a streamed answer.
// Recv returns io.EOF on clean completion.
type AnswerStream interface {
	Recv() (string, error)
	Close() error
}

// MessagePage is one authoritative page of messages from the server,
// newest-first.
type MessagePage struct {
	Messages   []Message
	NextCursor string
}

// API is the server surface the session talks to.
type API interface {
	Ask(ctx context.Context, documentID, question string) (AnswerStream, error)
	ListMessages(ctx context.Context, documentID, cursor string, limit int) (*MessagePage, error)
}

const defaultPageSize = 20

// ChatSession drives one document's conversation: it applies the optimistic
// user message, consumes the streamed answer into the shared cache, and
// reconciles or rolls back when the stream settles or fails. At most one
// question is in flight at a time.
type ChatSession struct {
	api        API
	documentID string
	cache      *ConversationCache
	pageSize   int

	mu       sync.Mutex
	state    State
	input    string
	notice   string
	inFlight bool

	onFragment func(fragment string)
	now        func() time.Time
	newID      func() string
}

// NewChatSession creates a session over the given document and cache.
func NewChatSession(api API, documentID string, cache *ConversationCache) *ChatSession {
	return &ChatSession{
		api:        api,
		documentID: documentID,
		cache:      cache,
		pageSize:   defaultPageSize,
		state:      StateIdle,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// SetFragmentHandler registers a callback invoked for every streamed fragment
// after it has been applied to the cache. Used by the CLI to render the
// answer as it arrives.
func (s *ChatSession) SetFragmentHandler(fn func(fragment string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFragment = fn
}

// SetInput replaces the input buffer.
func (s *ChatSession) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = text
}

// Input returns the current input buffer contents.
func (s *ChatSession) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// State returns the session's current lifecycle state.
func (s *ChatSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Notice returns the user-visible failure notice from the last rollback,
// empty if the last request settled cleanly.
func (s *ChatSession) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// Refresh replaces the first cached page with the authoritative server page.
// While a question is in flight the first page belongs to that exchange, so
// Refresh returns ErrRequestInFlight instead of clobbering the provisional
// messages.
func (s *ChatSession) Refresh(ctx context.Context) error {
	if err := s.rejectInFlight(); err != nil {
		return err
	}
	return s.refresh(ctx)
}

func (s *ChatSession) refresh(ctx context.Context) error {
	page, err := s.api.ListMessages(ctx, s.documentID, "", s.pageSize)
	if err != nil {
		return fmt.Errorf("failed to refresh conversation: %w", err)
	}
	s.cache.Update(func(pages []Page) []Page {
		first := Page{Messages: page.Messages, NextCursor: page.NextCursor}
		if len(pages) == 0 {
			return []Page{first}
		}
		pages[0] = first
		return pages
	})
	return nil
}

// LoadMore fetches the page after the last cached one and appends it.
// Returns false when there are no older messages to load. Like Refresh, it
// is rejected while a question is in flight: an appended page would be
// discarded by a rollback.
func (s *ChatSession) LoadMore(ctx context.Context) (bool, error) {
	if err := s.rejectInFlight(); err != nil {
		return false, err
	}
	pages := s.cache.Pages()
	if len(pages) == 0 {
		return true, s.refresh(ctx)
	}
	cursor := pages[len(pages)-1].NextCursor
	if cursor == "" {
		return false, nil
	}
	page, err := s.api.ListMessages(ctx, s.documentID, cursor, s.pageSize)
	if err != nil {
		return false, fmt.Errorf("failed to load older messages: %w", err)
	}
	s.cache.Update(func(pages []Page) []Page {
		return append(pages, Page{Messages: page.Messages, NextCursor: page.NextCursor})
	})
	return true, nil
}

// Submit sends the current input buffer as a question and blocks until the
// answer stream settles or fails. The optimistic user message is visible in
// the cache before the network call goes out; on any failure the cache is
// restored to its pre-submit snapshot and the input buffer gets the original
// text back.
func (s *ChatSession) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrRequestInFlight
	}
	question := strings.TrimSpace(s.input)
	if question == "" {
		s.mu.Unlock()
		return ErrEmptyQuestion
	}
	original := s.input
	s.input = ""
	s.notice = ""
	s.inFlight = true
	s.state = StateSending
	userID := ProvisionalID(s.newID())
	s.mu.Unlock()

	snapshot := s.cache.TakeSnapshot()

	s.cache.Update(func(pages []Page) []Page {
		userMsg := Message{
			ID:        userID,
			Role:      RoleUser,
			Text:      question,
			CreatedAt: s.now(),
			Status:    DeliveryPending,
		}
		if len(pages) == 0 {
			return []Page{{Messages: []Message{userMsg}}}
		}
		pages[0].Messages = append([]Message{userMsg}, pages[0].Messages...)
		return pages
	})

	stream, err := s.api.Ask(ctx, s.documentID, question)
	if err != nil {
		return s.rollback(original, snapshot, err)
	}
	defer stream.Close()

	s.setState(StateStreaming)

	assistantID := ProvisionalID(s.newID())
	received := false
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return s.rollback(original, snapshot, err)
		}
		if ctx.Err() != nil {
			return s.rollback(original, snapshot, ctx.Err())
		}
		if !received {
			received = true
			s.insertAssistant(assistantID, fragment)
		} else {
			s.appendFragment(assistantID, fragment)
		}
		if s.onFragment != nil {
			s.onFragment(fragment)
		}
	}

	// The persisted answer is authoritative: the refresh swaps the
	// provisional assistant message for the durable server record.
	if err := s.refresh(ctx); err != nil {
		s.cache.Invalidate()
	}

	s.mu.Lock()
	s.state = StateSettled
	s.inFlight = false
	s.mu.Unlock()
	return nil
}

func (s *ChatSession) rejectInFlight() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrRequestInFlight
	}
	return nil
}

func (s *ChatSession) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// insertAssistant adds the provisional assistant message to the first page on
// receipt of the first fragment.
func (s *ChatSession) insertAssistant(id MessageID, fragment string) {
	s.cache.Update(func(pages []Page) []Page {
		msg := Message{
			ID:        id,
			Role:      RoleAssistant,
			Text:      fragment,
			CreatedAt: s.now(),
			Status:    DeliveryPending,
		}
		if len(pages) == 0 {
			return []Page{{Messages: []Message{msg}}}
		}
		pages[0].Messages = append([]Message{msg}, pages[0].Messages...)
		return pages
	})
}

// appendFragment extends the provisional assistant message in place so the
// answer grows without replacing the page.
func (s *ChatSession) appendFragment(id MessageID, fragment string) {
	s.cache.Update(func(pages []Page) []Page {
		if len(pages) == 0 {
			return pages
		}
		for i := range pages[0].Messages {
			if pages[0].Messages[i].ID == id {
				pages[0].Messages[i].Text += fragment
				break
			}
		}
		return pages
	})
}

// rollback restores the pre-submit view and input so the user can retry
// without retyping. Partial streamed content never stays visible.
func (s *ChatSession) rollback(original string, snap Snapshot, cause error) error {
	s.cache.Restore(snap)
	s.mu.Lock()
	s.input = original
	s.notice = fmt.Sprintf("failed to send question: %v", cause)
	s.state = StateRolledBack
	s.inFlight = false
	s.mu.Unlock()
	return fmt.Errorf("failed to send question: %w", cause)
}
