package gateway

import (
	"context"

	"github.com/lgustavoss/dx-connect-backend-sub001/internal/model"
)

// Transport is the external-channel connector the gateway drives. The
// concrete implementation owns the wire protocol; the gateway only cares
// about connect/disconnect/send and the callbacks below.
type Transport interface {
	// Connect establishes the channel connection. It may return before
	// the channel is usable; the transport reports readiness through
	// Handler.OnConnected.
	Connect(ctx context.Context) error

	// Disconnect tears the connection down. Idempotent.
	Disconnect(ctx context.Context) error

	// Send hands an accepted outbound message to the channel. Delivery
	// confirmation arrives asynchronously via Handler.OnMessageStatus.
	Send(ctx context.Context, msg *model.Message) error

	// SetHandler registers the callback sink. Must be called before
	// Connect.
	SetHandler(h TransportHandler)
}

// TransportHandler receives asynchronous transport callbacks. The
// gateway implements it; transports must never call back concurrently
// for the same message id out of delivery order.
type TransportHandler interface {
	// OnConnected fires when the channel connection is established.
	OnConnected()

	// OnDisconnected fires when the connection drops. err is nil for a
	// deliberate teardown.
	OnDisconnected(err error)

	// OnMessageStatus reports a delivery-status change for an outbound
	// message previously passed to Send.
	OnMessageStatus(messageID string, status model.MessageStatus, errMsg string)

	// OnIncoming delivers a raw inbound channel event for ingestion.
	OnIncoming(raw map[string]interface{})
}
