package gateway

import (
	"context"
	"log"
	"time"

	"github.com/lgustavoss/dx-connect-backend-sub001/internal/bus"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/model"
)

// Config is the opaque settings object handed in by the configuration
// layer. Secrets (the proxy URL, transport credentials) never pass
// through here; they
// go straight to the transport.
type Config struct {
	DeviceName       string
	ReconnectBackoff time.Duration
}

// Gateway is the single entry point the HTTP layer talks to. It composes
// the session state machine, the outbound dispatcher and inbound
// ingestion over one shared event bus, and is the only place internal
// conditions are translated into the public error taxonomy.
type Gateway struct {
	session    *Session
	dispatcher *Dispatcher
	ingestor   *Ingestor
}

// New wires a gateway. The transport's callback handler is registered
// here, so New must run before the transport connects.
func New(cfg Config, store MessageStore, transport Transport, b *bus.Bus) *Gateway {
	session := NewSession(cfg.DeviceName, transport, b, cfg.ReconnectBackoff)
	gw := &Gateway{
		session:    session,
		dispatcher: NewDispatcher(session, store, transport, b),
		ingestor:   NewIngestor(store, b),
	}
	transport.SetHandler(gw)
	return gw
}

// Start begins connecting the device session. Calling it while already
// connecting or ready returns the in-progress status unchanged.
func (g *Gateway) Start(ctx context.Context) SessionStatus {
	return g.session.Start(ctx)
}

// Stop tears the session down. Queued-but-undelivered messages are not
// failed retroactively; later sends fail fast with ErrSessionNotReady.
func (g *Gateway) Stop(ctx context.Context) {
	g.session.Stop(ctx)
}

// Status returns the current session snapshot without blocking.
func (g *Gateway) Status() SessionStatus {
	return g.session.Status()
}

// Send accepts an outbound message for delivery.
func (g *Gateway) Send(ctx context.Context, req SendRequest) (*model.Message, error) {
	return g.dispatcher.Send(ctx, req)
}

// Ingest normalizes and records an inbound channel event.
func (g *Gateway) Ingest(ctx context.Context, raw map[string]interface{}) (*model.Message, error) {
	return g.ingestor.Ingest(ctx, raw)
}

// OnConnected implements TransportHandler.
func (g *Gateway) OnConnected() {
	g.session.handleConnected()
}

// OnDisconnected implements TransportHandler.
func (g *Gateway) OnDisconnected(err error) {
	g.session.handleDisconnected(err)
}

// OnMessageStatus implements TransportHandler.
func (g *Gateway) OnMessageStatus(messageID string, status model.MessageStatus, errMsg string) {
	g.dispatcher.HandleStatus(messageID, status, errMsg)
}

// OnIncoming implements TransportHandler. Ingestion failures are logged
// and isolated; one malformed event never affects the session or the
// events after it.
func (g *Gateway) OnIncoming(raw map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := g.ingestor.Ingest(ctx, raw); err != nil {
		log.Printf("gateway: dropping inbound event: %v", err)
	}
}
