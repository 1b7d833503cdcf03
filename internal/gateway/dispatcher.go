package gateway

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lgustavoss/dx-connect-backend-sub001/internal/bus"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/event"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/helper"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/model"
)

// SendRequest carries an outbound send from the HTTP layer. AgentID is
// the authenticated caller; events are mirrored to its private target.
type SendRequest struct {
	AgentID         int64
	To              string
	Kind            model.MessageKind
	Body            string
	ClientMessageID string
}

// Dispatcher validates and de-duplicates outbound sends, then hands them
// to the transport. Delivery confirmations arrive asynchronously through
// HandleStatus and never block Send.
type Dispatcher struct {
	session   *Session
	store     MessageStore
	transport Transport
	publisher bus.Publisher

	// mu covers the dedupe check plus insert so two concurrent sends
	// with the same client message id cannot both pass, and the
	// in-flight table below.
	mu       sync.Mutex
	inFlight map[string]*pendingSend // messageID -> tracking entry
}

// pendingSend tracks a non-terminal outbound message so status callbacks
// can be ordered and routed without a storage read.
type pendingSend struct {
	status  model.MessageStatus
	agentID int64
}

// NewDispatcher builds a dispatcher bound to the given session, storage
// and transport.
func NewDispatcher(session *Session, store MessageStore, transport Transport, publisher bus.Publisher) *Dispatcher {
	return &Dispatcher{
		session:   session,
		store:     store,
		transport: transport,
		publisher: publisher,
		inFlight:  make(map[string]*pendingSend),
	}
}

// Send accepts an outbound message. Preconditions are checked in order
// and the first failure wins: destination, kind/body, session readiness,
// then client-message-id replay. On accept the message is persisted with
// status queued, handed to the transport and announced on the bus.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (*model.Message, error) {
	if strings.TrimSpace(req.To) == "" {
		return nil, InvalidArgument("to")
	}
	to, err := helper.FormatPhoneNumber(req.To)
	if err != nil {
		return nil, InvalidArgument("to")
	}

	if !model.SupportedKind(req.Kind) {
		return nil, InvalidArgument("kind")
	}
	if req.Body == "" {
		if req.Kind == model.KindImage {
			return nil, InvalidArgument("media")
		}
		return nil, InvalidArgument("body")
	}

	if !d.session.Ready() {
		return nil, ErrSessionNotReady
	}

	d.mu.Lock()
	if req.ClientMessageID != "" {
		existing, err := d.store.FindPendingByClientID(ctx, req.ClientMessageID)
		if err != nil {
			d.mu.Unlock()
			return nil, err
		}
		if existing != nil {
			d.mu.Unlock()
			log.Printf("dispatcher: replaying client_message_id=%s as message %s", req.ClientMessageID, existing.ID)
			return existing, nil
		}
	}

	now := time.Now().UTC()
	msg := &model.Message{
		ID:              uuid.New().String(),
		ChatID:          to,
		Content:         req.Body,
		Kind:            req.Kind,
		Status:          model.StatusQueued,
		ClientMessageID: req.ClientMessageID,
		IsFromMe:        true,
		IsFromAgent:     true,
		AgentID:         req.AgentID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := d.store.SaveMessage(ctx, msg); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	d.inFlight[msg.ID] = &pendingSend{status: model.StatusQueued, agentID: req.AgentID}
	d.mu.Unlock()

	d.publishSent(msg)

	if err := d.transport.Send(ctx, msg); err != nil {
		// Transport refused the handoff. The record stays as an
		// accepted message that failed to deliver; the failure travels
		// as a status event, same as an asynchronous one.
		log.Printf("dispatcher: transport send failed for %s: %v", msg.ID, err)
		d.HandleStatus(msg.ID, model.StatusFailed, err.Error())
		msg.Status = model.StatusFailed
		msg.Error = err.Error()
	}

	return msg, nil
}

// HandleStatus applies an asynchronous delivery-status change reported
// by the transport. Transitions are monotonic forward only; failed is
// terminal from any non-terminal state. Out-of-order or unknown reports
// are dropped.
func (d *Dispatcher) HandleStatus(messageID string, status model.MessageStatus, errMsg string) {
	d.mu.Lock()
	pending, ok := d.inFlight[messageID]
	if !ok {
		d.mu.Unlock()
		log.Printf("dispatcher: status %s for unknown message %s, ignoring", status, messageID)
		return
	}
	if !pending.status.CanTransitionTo(status) {
		d.mu.Unlock()
		log.Printf("dispatcher: dropping status %s for %s (current %s)", status, messageID, pending.status)
		return
	}
	pending.status = status
	agentID := pending.agentID
	if status.Terminal() {
		delete(d.inFlight, messageID)
	}
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.UpdateMessageStatus(ctx, messageID, status, errMsg); err != nil {
		log.Printf("dispatcher: failed to persist status %s for %s: %v", status, messageID, err)
	}

	env := event.New(event.TypeMessageStatusUpdate, event.MessageStatusData{
		MessageID: messageID,
		Status:    string(status),
		Error:     errMsg,
		UpdatedAt: time.Now().UTC(),
	})
	d.publisher.Publish(event.GlobalTarget, env)
	if agentID != 0 {
		d.publisher.Publish(event.AgentTarget(agentID), env)
	}
}

// publishSent announces an accepted send on the global target and on the
// initiating agent's private target.
func (d *Dispatcher) publishSent(msg *model.Message) {
	env := event.New(event.TypeMessageSent, event.MessageSentData{
		MessageID:       msg.ID,
		ClientMessageID: msg.ClientMessageID,
		To:              msg.ChatID,
		Kind:            string(msg.Kind),
		Status:          string(msg.Status),
		CreatedAt:       msg.CreatedAt,
	})
	d.publisher.Publish(event.GlobalTarget, env)
	if msg.AgentID != 0 {
		d.publisher.Publish(event.AgentTarget(msg.AgentID), env)
	}
}
