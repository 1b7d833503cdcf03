package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/lgustavoss/dx-connect-backend-sub001/internal/model"
)

// fakeTransport is an in-memory Transport for tests. With autoReady set
// it reports OnConnected synchronously from Connect.
type fakeTransport struct {
	mu            sync.Mutex
	handler       TransportHandler
	autoReady     bool
	connectErr    error
	sendErr       error
	connectCalls  int
	disconnects   int
	sent          []*model.Message
}

func (t *fakeTransport) SetHandler(h TransportHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

func (t *fakeTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	t.connectCalls++
	autoReady := t.autoReady
	err := t.connectErr
	handler := t.handler
	t.mu.Unlock()

	if err != nil {
		return err
	}
	if autoReady && handler != nil {
		handler.OnConnected()
	}
	return nil
}

func (t *fakeTransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnects++
	return nil
}

func (t *fakeTransport) Send(ctx context.Context, msg *model.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func (t *fakeTransport) reportConnected() {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler != nil {
		handler.OnConnected()
	}
}

func (t *fakeTransport) reportDisconnected(err error) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler != nil {
		handler.OnDisconnected(err)
	}
}

func (t *fakeTransport) reportStatus(messageID string, status model.MessageStatus, errMsg string) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler != nil {
		handler.OnMessageStatus(messageID, status, errMsg)
	}
}

// memStore is an in-memory MessageStore for tests.
type memStore struct {
	mu          sync.Mutex
	messages    map[string]*model.Message
	order       []string
	assignments map[string]int64
	saveErr     error
}

func newMemStore() *memStore {
	return &memStore{
		messages:    make(map[string]*model.Message),
		assignments: make(map[string]int64),
	}
}

func (s *memStore) SaveMessage(ctx context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	copied := *m
	s.messages[m.ID] = &copied
	s.order = append(s.order, m.ID)
	return nil
}

func (s *memStore) UpdateMessageStatus(ctx context.Context, id string, status model.MessageStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return errors.New("message not found")
	}
	m.Status = status
	m.Error = errMsg
	return nil
}

func (s *memStore) FindPendingByClientID(ctx context.Context, clientMessageID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		m := s.messages[s.order[i]]
		if m.ClientMessageID == clientMessageID && m.IsFromMe && !m.Status.Terminal() {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) AssignedAgentID(ctx context.Context, chatID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignments[chatID], nil
}

func (s *memStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *memStore) get(id string) *model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil
	}
	copied := *m
	return &copied
}
