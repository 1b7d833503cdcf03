package transport

import (
	"sync"
	"time"
)

const (
	defaultWireTTL     = 24 * time.Hour
	defaultWireMaxSize = 4096
)

// wireTable maps channel message ids to gateway message ids so delivery
// receipts can be translated back. Receipts are not guaranteed for every
// message, so entries also age out after a TTL and the oldest entry is
// evicted when the table is full.
type wireTable struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	entries map[string]wireEntry
}

type wireEntry struct {
	messageID string
	addedAt   time.Time
}

func newWireTable(ttl time.Duration, maxSize int) *wireTable {
	return &wireTable{
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		entries: make(map[string]wireEntry),
	}
}

// record remembers the gateway message id behind a wire id, pruning
// expired entries and evicting the oldest one at capacity.
func (t *wireTable) record(wireID, messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for id, e := range t.entries {
		if now.Sub(e.addedAt) > t.ttl {
			delete(t.entries, id)
		}
	}

	if len(t.entries) >= t.maxSize {
		var oldestID string
		var oldestAt time.Time
		for id, e := range t.entries {
			if oldestID == "" || e.addedAt.Before(oldestAt) {
				oldestID = id
				oldestAt = e.addedAt
			}
		}
		delete(t.entries, oldestID)
	}

	t.entries[wireID] = wireEntry{messageID: messageID, addedAt: now}
}

// resolve returns the gateway message id for a wire id. With drop set
// the entry is removed, for receipts that end the message's lifecycle.
func (t *wireTable) resolve(wireID string, drop bool) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[wireID]
	if !ok {
		return "", false
	}
	if t.now().Sub(e.addedAt) > t.ttl {
		delete(t.entries, wireID)
		return "", false
	}
	if drop {
		delete(t.entries, wireID)
	}
	return e.messageID, true
}

func (t *wireTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
