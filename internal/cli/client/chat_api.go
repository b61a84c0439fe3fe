package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/inkwell-labs/quill/internal/chat"
)

var _ chat.API = (*APIClient)(nil)

// answerStream adapts a chunked HTTP response body to chat.AnswerStream.
type answerStream struct {
	body io.ReadCloser
	buf  []byte
}

func (s *answerStream) Recv() (string, error) {
	n, err := s.body.Read(s.buf)
	if n > 0 {
		return string(s.buf[:n]), nil
	}
	if err != nil {
		return "", err
	}
	return "", nil
}

func (s *answerStream) Close() error {
	return s.body.Close()
}

// Ask submits a question and returns an incremental read handle over the
// streamed answer. The request deliberately bypasses the client's default
// timeout: a long answer keeps the connection open well past 30 seconds.
func (c *APIClient) Ask(ctx context.Context, documentID, question string) (chat.AnswerStream, error) {
	payload, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal question: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/documents/"+url.PathEscape(documentID)+"/messages",
		bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	streamClient := &http.Client{Timeout: 0}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		var apiResp APIResponse
		message := string(body)
		if err := json.Unmarshal(body, &apiResp); err == nil && apiResp.Error != "" {
			message = apiResp.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	return &answerStream{body: resp.Body, buf: make([]byte, 4096)}, nil
}

type messageItem struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

type listMessagesPayload struct {
	Items   []messageItem `json:"items"`
	Cursor  string        `json:"cursor"`
	HasMore bool          `json:"has_more"`
}

// ListMessages fetches one page of a document's conversation, newest-first.
func (c *APIClient) ListMessages(ctx context.Context, documentID, cursor string, limit int) (*chat.MessagePage, error) {
	path := "/documents/" + url.PathEscape(documentID) + "/messages?limit=" + strconv.Itoa(limit)
	if cursor != "" {
		path += "&cursor=" + url.QueryEscape(cursor)
	}

	resp, err := c.Get(path)
	if err != nil {
		return nil, err
	}

	var payload listMessagesPayload
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}

	page := &chat.MessagePage{NextCursor: payload.Cursor}
	if !payload.HasMore {
		page.NextCursor = ""
	}
	for _, item := range payload.Items {
		createdAt, _ := time.Parse(time.RFC3339Nano, item.CreatedAt)
		page.Messages = append(page.Messages, chat.Message{
			ID:        chat.DurableID(item.ID),
			Role:      chat.Role(item.Role),
			Text:      item.Text,
			CreatedAt: createdAt,
			Status:    chat.DeliveryCommitted,
		})
	}
	return page, nil
}
