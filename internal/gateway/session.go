package gateway

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lgustavoss/dx-connect-backend-sub001/internal/bus"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/event"
)

// SessionState is the lifecycle state of the device session.
type SessionState string

const (
	StateStopped    SessionState = "stopped"
	StateConnecting SessionState = "connecting"
	StateReady      SessionState = "ready"
	StateError      SessionState = "error"
)

// SessionStatus is a point-in-time snapshot of the session.
type SessionStatus struct {
	State      SessionState `json:"state"`
	DeviceName string       `json:"device_name"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	LastError  string       `json:"last_error,omitempty"`
}

// Session owns the lifecycle of the single external connection for one
// device. All mutation goes through its transition operations; Start and
// Stop serialize on the transition lock while Status stays a pure read.
type Session struct {
	transport        Transport
	publisher        bus.Publisher
	reconnectBackoff time.Duration

	// transitionMu serializes Start/Stop. Held across the transport
	// connect/disconnect call, never by Status or callbacks.
	transitionMu sync.Mutex

	mu         sync.RWMutex
	state      SessionState
	deviceName string
	startedAt  *time.Time
	lastError  string
	stopping   bool
}

// NewSession builds a stopped session for the named device.
func NewSession(deviceName string, transport Transport, publisher bus.Publisher, reconnectBackoff time.Duration) *Session {
	return &Session{
		transport:        transport,
		publisher:        publisher,
		reconnectBackoff: reconnectBackoff,
		state:            StateStopped,
		deviceName:       deviceName,
	}
}

// Start moves the session from stopped (or error) into connecting and
// asks the transport to connect. A call arriving while the session is
// already connecting or ready is a no-op returning the current status:
// only one connection attempt is ever in flight.
func (s *Session) Start(ctx context.Context) SessionStatus {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	status := s.Status()
	if status.State == StateConnecting || status.State == StateReady {
		return status
	}

	s.setState(StateConnecting, "")

	if err := s.transport.Connect(ctx); err != nil {
		log.Printf("session: connect failed for %s: %v", s.deviceName, err)
		s.setState(StateError, err.Error())
	}

	return s.Status()
}

// Stop tears the session down from any state. Transport teardown is
// always attempted; the session ends stopped with lastError cleared.
func (s *Session) Stop(ctx context.Context) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	if err := s.transport.Disconnect(ctx); err != nil {
		log.Printf("session: disconnect failed for %s: %v", s.deviceName, err)
	}

	// Clearing stopping and landing on stopped happens in one critical
	// section so no callback can slip in between.
	s.mu.Lock()
	s.stopping = false
	s.startedAt = nil
	s.state = StateStopped
	s.lastError = ""
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publishStatus(snapshot)
}

// Status returns the current snapshot. Never blocks on a transition in
// flight.
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionStatus{
		State:      s.state,
		DeviceName: s.deviceName,
		StartedAt:  s.startedAt,
		LastError:  s.lastError,
	}
}

// Ready reports whether sends may proceed.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateReady
}

// handleConnected is called when the transport reports an established
// connection. Only meaningful while connecting; a callback racing a
// teardown in progress is dropped. Check and transition share one
// critical section so Stop can never observe a half-applied ready.
func (s *Session) handleConnected() {
	s.mu.Lock()
	if s.state != StateConnecting || s.stopping {
		s.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	s.startedAt = &now
	s.state = StateReady
	s.lastError = ""
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publishStatus(snapshot)
	log.Printf("session: connected, device=%s", s.deviceName)
}

// handleDisconnected is called when the transport drops. A teardown
// initiated by Stop is ignored; an unexpected drop moves the session to
// error and, when a backoff is configured, schedules a reconnect.
func (s *Session) handleDisconnected(err error) {
	reason := "connection lost"
	if err != nil {
		reason = err.Error()
	}

	s.mu.Lock()
	if s.stopping || s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateError
	s.lastError = reason
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publishStatus(snapshot)
	log.Printf("session: disconnected, device=%s: %s", s.deviceName, reason)

	if s.reconnectBackoff > 0 {
		time.AfterFunc(s.reconnectBackoff, s.reconnect)
	}
}

// reconnect re-enters connecting after an unexpected drop, unless the
// session was stopped in the meantime.
func (s *Session) reconnect() {
	if s.Status().State != StateError {
		return
	}
	log.Printf("session: reconnecting device=%s", s.deviceName)
	s.Start(context.Background())
}

// setState records a transition and publishes it on the global target.
func (s *Session) setState(state SessionState, lastError string) {
	s.mu.Lock()
	s.state = state
	s.lastError = lastError
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publishStatus(snapshot)
}

// snapshotLocked builds a status snapshot; s.mu must be held.
func (s *Session) snapshotLocked() SessionStatus {
	return SessionStatus{
		State:      s.state,
		DeviceName: s.deviceName,
		StartedAt:  s.startedAt,
		LastError:  s.lastError,
	}
}

func (s *Session) publishStatus(snapshot SessionStatus) {
	s.publisher.Publish(event.GlobalTarget, event.New(event.TypeSessionStatus, event.SessionStatusData{
		State:      string(snapshot.State),
		DeviceName: snapshot.DeviceName,
		StartedAt:  snapshot.StartedAt,
		LastError:  snapshot.LastError,
	}))
}
