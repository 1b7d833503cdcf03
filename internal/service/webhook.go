package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/lgustavoss/dx-connect-backend-sub001/internal/bus"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/event"
)

// WebhookNotifier forwards gateway events from the bus to an external
// HTTP endpoint, signing each delivery when a secret is configured. It
// is just another subscriber on the global target: a slow or failing
// endpoint loses events, it never backs pressure into the gateway.
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
	cancel context.CancelFunc
}

// NewWebhookNotifier builds a notifier for the given endpoint. An empty
// url yields a nil notifier, which is safe to Start and Stop.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	if url == "" {
		return nil
	}
	return &WebhookNotifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Start subscribes to the global target and begins delivering events.
func (n *WebhookNotifier) Start(b *bus.Bus) {
	if n == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	ch, _ := b.Subscribe(ctx, event.GlobalTarget)
	go func() {
		for env := range ch {
			n.deliver(env)
		}
	}()
	log.Printf("webhook: delivering gateway events to %s", n.url)
}

// Stop ends delivery and releases the subscription.
func (n *WebhookNotifier) Stop() {
	if n == nil || n.cancel == nil {
		return
	}
	n.cancel()
}

func (n *WebhookNotifier) deliver(env event.Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		log.Printf("webhook: marshal error: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.Printf("webhook: new request error: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	if n.secret != "" {
		mac := hmac.New(sha256.New, []byte(n.secret))
		mac.Write(body)
		req.Header.Set("X-DXConnect-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("webhook: send error: %v", err)
		return
	}
	_ = resp.Body.Close()
}
