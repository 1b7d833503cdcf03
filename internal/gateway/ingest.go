package gateway

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lgustavoss/dx-connect-backend-sub001/internal/bus"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/event"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/model"
)

// Ingestor normalizes raw inbound channel events into the canonical
// message shape, writes them through to storage and fans them out.
// Each event is processed in isolation: a malformed payload is dropped
// without affecting the session or later events.
type Ingestor struct {
	store     MessageStore
	publisher bus.Publisher
}

// NewIngestor builds an ingestor over the given storage and bus.
func NewIngestor(store MessageStore, publisher bus.Publisher) *Ingestor {
	return &Ingestor{store: store, publisher: publisher}
}

// Ingest accepts an opaque inbound payload, either from the transport's
// event callback or injected administratively. Required fields: a chat
// identity and content. Everything else is optional with safe defaults.
func (i *Ingestor) Ingest(ctx context.Context, raw map[string]interface{}) (*model.Message, error) {
	chatID := stringField(raw, "chat_id", "from")
	if chatID == "" {
		return nil, InvalidPayload("missing chat identity")
	}

	content := stringField(raw, "content", "body")
	if content == "" {
		return nil, InvalidPayload("missing content")
	}

	kind := model.MessageKind(stringField(raw, "kind"))
	if kind == "" {
		kind = model.KindText
	}
	if !model.SupportedKind(kind) {
		return nil, InvalidPayload("unsupported kind " + string(kind))
	}

	sender := stringField(raw, "sender")
	if sender == "" {
		sender = chatID
	}

	msg := &model.Message{
		ID:          stringField(raw, "message_id"),
		ChatID:      chatID,
		Sender:      sender,
		Content:     content,
		Kind:        kind,
		Status:      model.StatusDelivered,
		IsFromMe:    boolField(raw, "from_me"),
		IsFromAgent: boolField(raw, "from_agent"),
		CreatedAt:   receivedAt(raw),
		UpdatedAt:   time.Now().UTC(),
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	if err := i.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	data := event.MessageReceivedData{
		MessageID:   msg.ID,
		ChatID:      msg.ChatID,
		Sender:      msg.Sender,
		Content:     msg.Content,
		Kind:        string(msg.Kind),
		IsFromMe:    msg.IsFromMe,
		IsFromAgent: msg.IsFromAgent,
		ReceivedAt:  msg.CreatedAt,
	}
	env := event.New(event.TypeMessageReceived, data)
	i.publisher.Publish(event.GlobalTarget, env)

	// Scope the event to the assigned agent's live connections, when
	// the conversation has one.
	agentID, err := i.store.AssignedAgentID(ctx, msg.ChatID)
	if err != nil {
		log.Printf("ingest: assignment lookup failed for %s: %v", msg.ChatID, err)
	} else if agentID != 0 {
		i.publisher.Publish(event.AgentTarget(agentID), env)
	}

	return msg, nil
}

func stringField(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func boolField(raw map[string]interface{}, key string) bool {
	v, ok := raw[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func receivedAt(raw map[string]interface{}) time.Time {
	if v, ok := raw["timestamp"]; ok {
		switch t := v.(type) {
		case time.Time:
			return t.UTC()
		case string:
			if parsed, err := time.Parse(time.RFC3339, t); err == nil {
				return parsed.UTC()
			}
		case float64:
			return time.Unix(int64(t), 0).UTC()
		}
	}
	return time.Now().UTC()
}
