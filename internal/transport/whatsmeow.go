package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/lgustavoss/dx-connect-backend-sub001/config"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/gateway"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/helper"
	"github.com/lgustavoss/dx-connect-backend-sub001/internal/model"
)

// Whatsmeow drives the real WhatsApp connection behind the gateway's
// Transport interface. Credentials live in the whatsmeow device store;
// the gateway never sees whatsmeow types.
type Whatsmeow struct {
	settings  config.WhatsAppSettings
	container *sqlstore.Container
	handler   gateway.TransportHandler

	mu     sync.Mutex
	client *whatsmeow.Client

	wire *wireTable
}

// NewWhatsmeow builds a disconnected transport over the given device
// store container.
func NewWhatsmeow(settings config.WhatsAppSettings, container *sqlstore.Container) *Whatsmeow {
	return &Whatsmeow{
		settings:  settings,
		container: container,
		wire:      newWireTable(defaultWireTTL, defaultWireMaxSize),
	}
}

// SetHandler implements gateway.Transport.
func (w *Whatsmeow) SetHandler(h gateway.TransportHandler) {
	w.handler = h
}

// Connect implements gateway.Transport. Readiness is reported through
// the Connected event, not the return value.
func (w *Whatsmeow) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil && w.client.IsConnected() {
		return nil
	}

	// Device name is a global whatsmeow setting; set it before the
	// device is loaded.
	store.DeviceProps.Os = proto.String(w.settings.DeviceName)

	device, err := w.container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("loading device store: %w", err)
	}
	if device.ID == nil {
		return errors.New("device not paired: no stored credentials")
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", "INFO", true))
	client.AddEventHandler(w.eventHandler)

	if w.settings.ProxyURL != "" {
		if err := client.SetProxyAddress(w.settings.ProxyURL); err != nil {
			return fmt.Errorf("setting proxy: %w", err)
		}
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connecting to channel: %w", err)
	}

	w.client = client
	return nil
}

// Disconnect implements gateway.Transport. Idempotent.
func (w *Whatsmeow) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil {
		w.client.Disconnect()
		w.client = nil
	}
	return nil
}

// Send implements gateway.Transport for text and image messages.
func (w *Whatsmeow) Send(ctx context.Context, msg *model.Message) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return errors.New("channel connection lost")
	}

	recipient := types.NewJID(msg.ChatID, types.DefaultUserServer)

	var waMsg *waE2E.Message
	switch msg.Kind {
	case model.KindText:
		if w.settings.StealthMode {
			w.simulateTyping(ctx, client, recipient, len(msg.Content))
		}
		waMsg = &waE2E.Message{Conversation: proto.String(msg.Content)}
	case model.KindImage:
		built, err := w.buildImageMessage(ctx, client, msg.Content)
		if err != nil {
			return err
		}
		waMsg = built
	default:
		return fmt.Errorf("unsupported kind %s", msg.Kind)
	}

	resp, err := client.SendMessage(ctx, recipient, waMsg)
	if err != nil {
		return fmt.Errorf("channel send: %w", err)
	}

	w.wire.record(string(resp.ID), msg.ID)

	if w.handler != nil {
		w.handler.OnMessageStatus(msg.ID, model.StatusSent, "")
	}
	return nil
}

// buildImageMessage decodes, normalizes and uploads a base64 image body.
func (w *Whatsmeow) buildImageMessage(ctx context.Context, client *whatsmeow.Client, body string) (*waE2E.Message, error) {
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("decoding image body: %w", err)
	}

	normalized, err := helper.NormalizeImage(data)
	if err != nil {
		return nil, err
	}

	uploaded, err := client.Upload(ctx, normalized, whatsmeow.MediaImage)
	if err != nil {
		return nil, fmt.Errorf("uploading image: %w", err)
	}

	return &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String("image/webp"),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uint64(len(normalized))),
		},
	}, nil
}

// simulateTyping sends a composing presence and waits a human-looking
// delay derived from the message length. Bounds can be pinned through
// the typing delay settings.
func (w *Whatsmeow) simulateTyping(ctx context.Context, client *whatsmeow.Client, recipient types.JID, messageLength int) {
	baseDelay := 2
	typingSpeed := 0.15
	calculatedDelay := baseDelay + int(float64(messageLength)*typingSpeed)

	variationRange := int(float64(calculatedDelay) * 0.4)
	if variationRange < 1 {
		variationRange = 1
	}
	variation := rand.Intn(variationRange) - int(float64(calculatedDelay)*0.2)
	finalDelay := calculatedDelay + variation

	if finalDelay > 30 {
		finalDelay = 30
	}
	if finalDelay < 3 {
		finalDelay = 3
	}

	min, max := w.settings.TypingDelayMinSeconds, w.settings.TypingDelayMaxSeconds
	if min > 0 && max >= min {
		finalDelay = rand.Intn(max-min+1) + min
	}

	_ = client.SendChatPresence(ctx, recipient, types.ChatPresenceComposing, types.ChatPresenceMediaText)
	time.Sleep(time.Duration(finalDelay*70/100) * time.Second)

	if messageLength > 50 && rand.Intn(100) < 30 {
		_ = client.SendChatPresence(ctx, recipient, types.ChatPresencePaused, types.ChatPresenceMediaText)
		time.Sleep(time.Duration(rand.Intn(2)+1) * time.Second)
		_ = client.SendChatPresence(ctx, recipient, types.ChatPresenceComposing, types.ChatPresenceMediaText)
	}

	time.Sleep(time.Duration(finalDelay*30/100) * time.Second)
}

// eventHandler translates whatsmeow events into transport callbacks.
func (w *Whatsmeow) eventHandler(evt interface{}) {
	if w.handler == nil {
		return
	}

	switch e := evt.(type) {
	case *events.Connected:
		w.mu.Lock()
		client := w.client
		w.mu.Unlock()
		if client != nil {
			if err := client.SendPresence(context.Background(), types.PresenceAvailable); err != nil {
				log.Printf("transport: failed to send presence: %v", err)
			}
		}
		w.handler.OnConnected()

	case *events.Disconnected:
		w.handler.OnDisconnected(errors.New("disconnected by server"))

	case *events.StreamReplaced:
		w.handler.OnDisconnected(errors.New("stream replaced by another device"))

	case *events.LoggedOut:
		w.handler.OnDisconnected(fmt.Errorf("logged out (reason %d)", int(e.Reason)))

	case *events.Receipt:
		w.handleReceipt(e)

	case *events.Message:
		w.handleMessage(e)
	}
}

func (w *Whatsmeow) handleReceipt(evt *events.Receipt) {
	var status model.MessageStatus
	switch evt.Type {
	case types.ReceiptTypeDelivered:
		status = model.StatusDelivered
	case types.ReceiptTypeRead:
		status = model.StatusRead
	default:
		return
	}

	for _, wireID := range evt.MessageIDs {
		// Read ends the lifecycle we track; the entry is dropped then.
		messageID, ok := w.wire.resolve(string(wireID), status == model.StatusRead)
		if !ok {
			continue
		}
		w.handler.OnMessageStatus(messageID, status, "")
	}
}

func (w *Whatsmeow) handleMessage(evt *events.Message) {
	content := evt.Message.GetConversation()
	if content == "" {
		content = evt.Message.GetExtendedTextMessage().GetText()
	}
	if content == "" {
		// Media and reaction payloads are not ingested yet.
		return
	}

	w.handler.OnIncoming(map[string]interface{}{
		"message_id": string(evt.Info.ID),
		"chat_id":    evt.Info.Chat.User,
		"sender":     helper.ExtractPhoneFromJID(evt.Info.Sender.String()),
		"content":    content,
		"from_me":    evt.Info.IsFromMe,
		"timestamp":  evt.Info.Timestamp,
	})
}
