package gateway

import (
	"context"

	"github.com/lgustavoss/dx-connect-backend-sub001/internal/model"
)

// MessageStore is the storage the gateway writes through. The gateway
// never reads message history back; it only resolves identifiers and
// duplicate client message ids.
type MessageStore interface {
	SaveMessage(ctx context.Context, m *model.Message) error
	UpdateMessageStatus(ctx context.Context, id string, status model.MessageStatus, errMsg string) error
	FindPendingByClientID(ctx context.Context, clientMessageID string) (*model.Message, error)
	AssignedAgentID(ctx context.Context, chatID string) (int64, error)
}
