package event

import (
	"fmt"
	"time"
)

// SchemaVersion is the envelope schema tag. Consumers must tolerate
// unknown fields in Data so the schema can evolve additively.
const SchemaVersion = "v1"

// Event types published by the gateway.
const (
	TypeSessionStatus       = "session_status"
	TypeMessageSent         = "message_sent"
	TypeMessageStatusUpdate = "message_status_update"
	TypeMessageReceived     = "message_received"
)

// GlobalTarget is the reserved broadcast channel every subscriber may join.
const GlobalTarget = "whatsapp_broadcast"

// AgentTarget returns the per-agent channel name for the given agent id.
// The name is deterministic so any component can compute it without lookup.
func AgentTarget(agentID int64) string {
	return fmt.Sprintf("user_%d_whatsapp", agentID)
}

// Envelope is the unit published to subscribers. Immutable once built.
type Envelope struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data"`
	Version string      `json:"version"`
}

// New builds an envelope tagged with the current schema version.
func New(eventType string, data interface{}) Envelope {
	return Envelope{
		Type:    eventType,
		Data:    data,
		Version: SchemaVersion,
	}
}

// SessionStatusData is the payload of session_status events.
type SessionStatusData struct {
	State      string     `json:"state"`
	DeviceName string     `json:"device_name"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// MessageSentData is the payload of message_sent events.
type MessageSentData struct {
	MessageID       string    `json:"message_id"`
	ClientMessageID string    `json:"client_message_id,omitempty"`
	To              string    `json:"to"`
	Kind            string    `json:"kind"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// MessageStatusData is the payload of message_status_update events.
type MessageStatusData struct {
	MessageID string    `json:"message_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageReceivedData is the payload of message_received events.
type MessageReceivedData struct {
	MessageID   string    `json:"message_id"`
	ChatID      string    `json:"chat_id"`
	Sender      string    `json:"sender"`
	Content     string    `json:"content"`
	Kind        string    `json:"kind"`
	IsFromMe    bool      `json:"is_from_me"`
	IsFromAgent bool      `json:"is_from_agent"`
	ReceivedAt  time.Time `json:"received_at"`
}
