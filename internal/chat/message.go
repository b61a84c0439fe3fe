package chat

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DeliveryStatus tracks how far a message has made it toward the server.
type DeliveryStatus string

const (
	// DeliveryPending marks an optimistic message not yet confirmed durable.
	DeliveryPending DeliveryStatus = "pending"
	// DeliveryCommitted marks a message backed by a durable server record.
	DeliveryCommitted DeliveryStatus = "committed"
)

// MessageID is either a durable server-assigned identifier or a provisional
// placeholder for a message that is still in flight. Using a tagged type
// instead of a magic string avoids collisions with real identifiers.
type MessageID struct {
	value       string
	provisional bool
}

// DurableID wraps a server-assigned identifier.
func DurableID(id string) MessageID {
	return MessageID{value: id}
}

// ProvisionalID creates a locally-assigned identifier for an in-flight message.
func ProvisionalID(local string) MessageID {
	return MessageID{value: local, provisional: true}
}

// IsProvisional reports whether the identifier is a local placeholder.
func (id MessageID) IsProvisional() bool {
	return id.provisional
}

// String returns the underlying identifier value.
func (id MessageID) String() string {
	return id.value
}

// Message is a single conversation turn as held by the client cache.
type Message struct {
	ID        MessageID
	Role      Role
	Text      string
	CreatedAt time.Time
	Status    DeliveryStatus
}
