package model

import "time"

// MessageKind is the payload kind of an outbound or inbound message.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
)

// SupportedKind reports whether the gateway knows how to carry kind.
func SupportedKind(kind MessageKind) bool {
	return kind == KindText || kind == KindImage
}

// MessageStatus is the delivery status of an outbound message.
type MessageStatus string

const (
	StatusQueued    MessageStatus = "queued"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// statusRank orders the forward-only delivery progression. Failed is
// handled separately: terminal from any non-terminal state.
var statusRank = map[MessageStatus]int{
	StatusQueued:    0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Terminal reports whether s admits no further transitions.
func (s MessageStatus) Terminal() bool {
	return s == StatusRead || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal
// forward transition.
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	cur, ok1 := statusRank[s]
	nxt, ok2 := statusRank[next]
	return ok1 && ok2 && nxt > cur
}

// Message is the canonical stored message shape. Outbound messages are
// created by the dispatcher; inbound messages by ingestion. The record is
// never deleted, only its status advances.
type Message struct {
	ID              string        `json:"id"`
	ChatID          string        `json:"chat_id"`
	Sender          string        `json:"sender"`
	Content         string        `json:"content"`
	Kind            MessageKind   `json:"kind"`
	Status          MessageStatus `json:"status"`
	ClientMessageID string        `json:"client_message_id,omitempty"`
	IsFromMe        bool          `json:"is_from_me"`
	IsFromAgent     bool          `json:"is_from_agent"`
	AgentID         int64         `json:"agent_id,omitempty"`
	Error           string        `json:"error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
