package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lgustavoss/dx-connect-backend-sub001/internal/bus"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/event"
)

// Client binds one WebSocket connection to one bus target. The write
// pump drains the bus subscription into the socket; closing either side
// releases the subscription.
type Client struct {
	conn   *websocket.Conn
	events <-chan event.Envelope
	cancel context.CancelFunc
	target string
}

// NewClient subscribes the connection to target on the bus. Call
// WritePump and ReadPump in their own goroutines afterwards.
func NewClient(conn *websocket.Conn, b *bus.Bus, target string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, target)
	return &Client{
		conn:   conn,
		events: ch,
		cancel: cancel,
		target: target,
	}
}

// WritePump sends envelopes from the subscription to the socket. Runs
// until the subscription channel closes or a write fails.
func (c *Client) WritePump() {
	defer func() {
		c.cancel()
		_ = c.conn.Close()
	}()

	for env := range c.events {
		payload, err := json.Marshal(env)
		if err != nil {
			log.Printf("ws: failed to marshal event: %v", err)
			continue
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("ws: failed to write message on %s: %v", c.target, err)
			return
		}
	}
}

// ReadPump consumes and discards client frames, keeping the connection
// alive through pongs and noticing when the peer goes away.
func (c *Client) ReadPump() {
	defer func() {
		c.cancel()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)

	_ = c.conn.SetReadDeadline(time.Now().Add(15 * time.Minute))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(15 * time.Minute))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
