package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgustavoss/dx-connect-backend-sub001/internal/bus"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/event"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/model"
)

func newTestSession(t *testing.T, transport Transport, backoff time.Duration) (*Session, *bus.Bus) {
	t.Helper()
	b := bus.New()
	t.Cleanup(b.Close)
	return NewSession("test-device", transport, b, backoff), b
}

func collectStates(ch <-chan event.Envelope, n int, timeout time.Duration) []string {
	var states []string
	for len(states) < n {
		select {
		case env := <-ch:
			if env.Type != event.TypeSessionStatus {
				continue
			}
			data := env.Data.(event.SessionStatusData)
			states = append(states, data.State)
		case <-time.After(timeout):
			return states
		}
	}
	return states
}

func TestSession_StartConnectsAndBecomesReady(t *testing.T) {
	transport := &fakeTransport{autoReady: true}
	session, _ := newTestSession(t, transport, 0)
	transport.SetHandler(handlerFuncs{session: session})

	status := session.Start(context.Background())

	assert.Equal(t, StateReady, status.State)
	assert.Empty(t, status.LastError)
	require.NotNil(t, status.StartedAt)
	assert.Equal(t, 1, transport.connectCalls)
}

func TestSession_StartWhileConnectingIsNoOp(t *testing.T) {
	transport := &fakeTransport{} // never reports connected
	session, _ := newTestSession(t, transport, 0)

	first := session.Start(context.Background())
	assert.Equal(t, StateConnecting, first.State)

	// Further starts must not trigger a second connection attempt.
	for range 5 {
		status := session.Start(context.Background())
		assert.Equal(t, StateConnecting, status.State)
	}
	assert.Equal(t, 1, transport.connectCalls)
}

func TestSession_ConcurrentStartsTransitionOnce(t *testing.T) {
	transport := &fakeTransport{}
	session, _ := newTestSession(t, transport, 0)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := session.Start(context.Background())
			assert.Equal(t, StateConnecting, status.State)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, transport.connectCalls)
}

func TestSession_ConnectFailureMovesToError(t *testing.T) {
	transport := &fakeTransport{connectErr: errors.New("dial refused")}
	session, _ := newTestSession(t, transport, 0)

	status := session.Start(context.Background())

	assert.Equal(t, StateError, status.State)
	assert.Equal(t, "dial refused", status.LastError)
}

func TestSession_StartFromErrorRetries(t *testing.T) {
	transport := &fakeTransport{connectErr: errors.New("dial refused")}
	session, _ := newTestSession(t, transport, 0)

	session.Start(context.Background())
	require.Equal(t, StateError, session.Status().State)

	transport.mu.Lock()
	transport.connectErr = nil
	transport.autoReady = true
	transport.mu.Unlock()
	transport.SetHandler(handlerFuncs{session: session})

	status := session.Start(context.Background())
	assert.Equal(t, StateReady, status.State)
}

func TestSession_StopFromAnyStateResets(t *testing.T) {
	transport := &fakeTransport{autoReady: true}
	session, _ := newTestSession(t, transport, 0)
	transport.SetHandler(handlerFuncs{session: session})

	session.Start(context.Background())
	require.Equal(t, StateReady, session.Status().State)

	session.Stop(context.Background())

	status := session.Status()
	assert.Equal(t, StateStopped, status.State)
	assert.Empty(t, status.LastError)
	assert.Nil(t, status.StartedAt)
	assert.Equal(t, 1, transport.disconnects)

	// Stopping again still attempts teardown and stays stopped.
	session.Stop(context.Background())
	assert.Equal(t, StateStopped, session.Status().State)
	assert.Equal(t, 2, transport.disconnects)
}

func TestSession_UnexpectedDisconnectMovesToError(t *testing.T) {
	transport := &fakeTransport{autoReady: true}
	session, _ := newTestSession(t, transport, 0)
	transport.SetHandler(handlerFuncs{session: session})

	session.Start(context.Background())
	require.Equal(t, StateReady, session.Status().State)

	session.handleDisconnected(errors.New("stream closed"))

	status := session.Status()
	assert.Equal(t, StateError, status.State)
	assert.Equal(t, "stream closed", status.LastError)
}

func TestSession_ReconnectsAfterBackoff(t *testing.T) {
	transport := &fakeTransport{autoReady: true}
	session, _ := newTestSession(t, transport, 20*time.Millisecond)
	transport.SetHandler(handlerFuncs{session: session})

	session.Start(context.Background())
	require.Equal(t, StateReady, session.Status().State)

	session.handleDisconnected(errors.New("stream closed"))
	require.Equal(t, StateError, session.Status().State)

	require.Eventually(t, func() bool {
		return session.Status().State == StateReady
	}, time.Second, 10*time.Millisecond, "session should reconnect after backoff")
	assert.Equal(t, 2, transport.connectCalls)
}

func TestSession_DisconnectDuringStopIsIgnored(t *testing.T) {
	transport := &fakeTransport{autoReady: true}
	session, _ := newTestSession(t, transport, 10*time.Millisecond)
	transport.SetHandler(handlerFuncs{session: session})

	session.Start(context.Background())
	session.Stop(context.Background())

	// A late disconnect callback after stop must not resurrect the
	// session or schedule a reconnect.
	session.handleDisconnected(errors.New("stream closed"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateStopped, session.Status().State)
	assert.Equal(t, 1, transport.connectCalls)
}

func TestSession_TransitionsPublishLifecycleEvents(t *testing.T) {
	transport := &fakeTransport{autoReady: true}
	session, b := newTestSession(t, transport, 0)
	transport.SetHandler(handlerFuncs{session: session})

	ch, _ := b.Subscribe(t.Context(), event.GlobalTarget)

	session.Start(context.Background())
	session.Stop(context.Background())

	states := collectStates(ch, 3, time.Second)
	assert.Equal(t, []string{"connecting", "ready", "stopped"}, states)
}

func TestSession_StatusNeverBlocksOnTransitionInFlight(t *testing.T) {
	block := make(chan struct{})
	transport := &blockingTransport{release: block}
	session, _ := newTestSession(t, transport, 0)

	go session.Start(context.Background())

	require.Eventually(t, func() bool {
		return session.Status().State == StateConnecting
	}, time.Second, 5*time.Millisecond)

	// Status reads while Connect is still blocked inside Start.
	done := make(chan SessionStatus, 1)
	go func() { done <- session.Status() }()

	select {
	case status := <-done:
		assert.Equal(t, StateConnecting, status.State)
	case <-time.After(time.Second):
		t.Fatal("Status blocked on transition in flight")
	}

	close(block)
}

// handlerFuncs adapts a bare session, and optionally a dispatcher, to
// the TransportHandler callbacks for tests that exercise them without a
// full gateway.
type handlerFuncs struct {
	session    *Session
	dispatcher *Dispatcher
}

func (h handlerFuncs) OnConnected()             { h.session.handleConnected() }
func (h handlerFuncs) OnDisconnected(err error) { h.session.handleDisconnected(err) }

func (h handlerFuncs) OnMessageStatus(messageID string, status model.MessageStatus, errMsg string) {
	if h.dispatcher != nil {
		h.dispatcher.HandleStatus(messageID, status, errMsg)
	}
}

func (h handlerFuncs) OnIncoming(map[string]interface{}) {}

func TestSession_ConnectedDuringStopIsIgnored(t *testing.T) {
	transport := &stallDisconnectTransport{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	session, b := newTestSession(t, transport, 0)

	ch, _ := b.Subscribe(t.Context(), event.GlobalTarget)

	session.Start(context.Background())
	require.Equal(t, StateConnecting, session.Status().State)

	done := make(chan struct{})
	go func() {
		session.Stop(context.Background())
		close(done)
	}()

	select {
	case <-transport.entered:
	case <-time.After(time.Second):
		t.Fatal("Stop never reached the transport")
	}

	// Teardown is in flight: a late connected callback must not mark
	// the session ready.
	session.handleConnected()
	assert.NotEqual(t, StateReady, session.Status().State)

	close(transport.release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	status := session.Status()
	assert.Equal(t, StateStopped, status.State)
	assert.Nil(t, status.StartedAt)

	// The event stream shows connecting then stopped, never ready.
	states := collectStates(ch, 3, 200*time.Millisecond)
	assert.Equal(t, []string{"connecting", "stopped"}, states)
}

// blockingTransport blocks Connect until released.
type blockingTransport struct {
	release chan struct{}
}

func (t *blockingTransport) SetHandler(TransportHandler) {}
func (t *blockingTransport) Connect(ctx context.Context) error {
	<-t.release
	return nil
}
func (t *blockingTransport) Disconnect(ctx context.Context) error          { return nil }
func (t *blockingTransport) Send(ctx context.Context, m *model.Message) error { return nil }

// stallDisconnectTransport signals when Disconnect is entered and holds
// it there until released.
type stallDisconnectTransport struct {
	entered chan struct{}
	release chan struct{}
}

func (t *stallDisconnectTransport) SetHandler(TransportHandler)    {}
func (t *stallDisconnectTransport) Connect(context.Context) error { return nil }
func (t *stallDisconnectTransport) Disconnect(context.Context) error {
	t.entered <- struct{}{}
	<-t.release
	return nil
}
func (t *stallDisconnectTransport) Send(context.Context, *model.Message) error { return nil }
