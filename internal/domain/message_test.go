package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageRoleConstants(t *testing.T) {
	tests := []struct {
		name     string
		role     MessageRole
		expected string
	}{
		{"User", MessageRoleUser, "user"},
		{"Assistant", MessageRoleAssistant, "assistant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.role))
		})
	}
}

func TestNewMessage(t *testing.T) {
	now := time.Now()
	msg := NewMessage("m1", "d1", "u1", MessageRoleUser, "what is this about?", now)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "d1", msg.DocumentID)
	assert.Equal(t, "u1", msg.UserID)
	assert.Equal(t, MessageRoleUser, msg.Role)
	assert.Equal(t, "what is this about?", msg.Text)
	assert.Equal(t, now, msg.CreatedAt)
}

func TestValidateMessage(t *testing.T) {
	now := time.Now()

	valid := NewMessage("m1", "d1", "u1", MessageRoleAssistant, "an answer", now)
	assert.NoError(t, ValidateMessage(valid))

	t.Run("nil message", func(t *testing.T) {
		assert.Error(t, ValidateMessage(nil))
	})

	t.Run("missing ID", func(t *testing.T) {
		msg := NewMessage("", "d1", "u1", MessageRoleUser, "text", now)
		assert.Error(t, ValidateMessage(msg))
	})

	t.Run("missing DocumentID", func(t *testing.T) {
		msg := NewMessage("m1", "", "u1", MessageRoleUser, "text", now)
		assert.Error(t, ValidateMessage(msg))
	})

	t.Run("missing Text", func(t *testing.T) {
		msg := NewMessage("m1", "d1", "u1", MessageRoleUser, "", now)
		assert.Error(t, ValidateMessage(msg))
	})

	t.Run("invalid role", func(t *testing.T) {
		msg := NewMessage("m1", "d1", "u1", MessageRole("system"), "text", now)
		assert.Error(t, ValidateMessage(msg))
	})
}

func TestValidateIndexJob(t *testing.T) {
	now := time.Now()

	valid := NewIndexJob("j1", "d1", IndexJobStatusPending, 0, "", now, nil)
	assert.NoError(t, ValidateIndexJob(valid))

	t.Run("nil job", func(t *testing.T) {
		assert.Error(t, ValidateIndexJob(nil))
	})

	t.Run("missing DocumentID", func(t *testing.T) {
		job := NewIndexJob("j1", "", IndexJobStatusPending, 0, "", now, nil)
		assert.Error(t, ValidateIndexJob(job))
	})

	t.Run("invalid status", func(t *testing.T) {
		job := NewIndexJob("j1", "d1", IndexJobStatus("queued"), 0, "", now, nil)
		assert.Error(t, ValidateIndexJob(job))
	})

	t.Run("negative retries", func(t *testing.T) {
		job := NewIndexJob("j1", "d1", IndexJobStatusPending, -1, "", now, nil)
		assert.Error(t, ValidateIndexJob(job))
	})
}
