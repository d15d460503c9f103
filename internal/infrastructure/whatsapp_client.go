package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

type WhatsAppClient struct {
	Client   *whatsmeow.Client
	TenantID string

	media *resty.Client

	qrCode string
	qrLock sync.RWMutex
}

func NewWhatsAppClient(ctx context.Context, dbPath, tenantID string) (*WhatsAppClient, error) {
	dbLog := waLog.Stdout("Database", waLevel(), true)
	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	clientLog := waLog.Stdout("Client["+tenantID+"]", waLevel(), true)
	return &WhatsAppClient{
		Client:   whatsmeow.NewClient(deviceStore, clientLog),
		TenantID: tenantID,
		media:    resty.New().SetTimeout(60 * time.Second),
	}, nil
}

// Connect opens the websocket. A device without a stored session starts the QR pairing flow.
func (w *WhatsAppClient) Connect() error {
	if w.Client.Store.ID != nil {
		if err := w.Client.Connect(); err != nil {
			return err
		}
		log.Info().Str("tenant", w.TenantID).Msg("WhatsApp connected (existing session)")
		return nil
	}

	qrChan, _ := w.Client.GetQRChannel(context.Background())
	if err := w.Client.Connect(); err != nil {
		return err
	}
	go w.watchQR(qrChan)
	return nil
}

func (w *WhatsAppClient) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		if evt.Event == "code" {
			w.qrLock.Lock()
			w.qrCode = evt.Code
			w.qrLock.Unlock()
			log.Info().Str("tenant", w.TenantID).Msg("New WhatsApp pairing code available")
			continue
		}
		if evt.Event == "success" {
			w.qrLock.Lock()
			w.qrCode = ""
			w.qrLock.Unlock()
		}
		log.Info().Str("tenant", w.TenantID).Str("event", evt.Event).Msg("WhatsApp login event")
	}
}

func (w *WhatsAppClient) GetQR() string {
	w.qrLock.RLock()
	defer w.qrLock.RUnlock()
	return w.qrCode
}

func (w *WhatsAppClient) IsLoggedIn() bool {
	return w.Client.Store.ID != nil
}

// IsConnected returns true if client is connected and logged in
func (w *WhatsAppClient) IsConnected() bool {
	return w.Client.IsConnected() && w.Client.Store.ID != nil
}

// GetUserInfo returns the paired phone number and push name
func (w *WhatsAppClient) GetUserInfo() (string, string) {
	if w.Client.Store.ID == nil {
		return "", ""
	}
	return w.Client.Store.ID.User, w.Client.Store.PushName
}

func (w *WhatsAppClient) Logout(ctx context.Context) error {
	w.qrLock.Lock()
	w.qrCode = ""
	w.qrLock.Unlock()

	if err := w.Client.Logout(ctx); err != nil {
		return err
	}
	w.Client.Disconnect()
	return nil
}

func (w *WhatsAppClient) Disconnect() {
	w.Client.Disconnect()
}

func (w *WhatsAppClient) AddHandler(handler func(interface{})) {
	w.Client.AddEventHandler(handler)
}

func userJID(phone string) (types.JID, error) {
	jid, err := types.ParseJID(phone + "@" + types.DefaultUserServer)
	if err != nil {
		return types.JID{}, fmt.Errorf("invalid number format: %w", err)
	}
	return jid, nil
}

func (w *WhatsAppClient) SendText(ctx context.Context, phone, text string) error {
	jid, err := userJID(phone)
	if err != nil {
		return err
	}
	_, err = w.Client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: proto.String(text),
	})
	return err
}

// SendMedia downloads mediaURL, uploads it to WhatsApp and sends it as image, video or document.
func (w *WhatsAppClient) SendMedia(ctx context.Context, phone, mediaURL, caption string) error {
	jid, err := userJID(phone)
	if err != nil {
		return err
	}

	resp, err := w.media.R().SetContext(ctx).Get(mediaURL)
	if err != nil {
		return fmt.Errorf("download media: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("download media: status %s", resp.Status())
	}
	data := resp.Body()
	mimetype := resp.Header().Get("Content-Type")
	if mimetype == "" || mimetype == "application/octet-stream" {
		mimetype = http.DetectContentType(data)
	}

	var msg *waProto.Message
	switch {
	case strings.HasPrefix(mimetype, "image/"):
		up, err := w.Client.Upload(ctx, data, whatsmeow.MediaImage)
		if err != nil {
			return fmt.Errorf("upload image: %w", err)
		}
		msg = &waProto.Message{ImageMessage: &waProto.ImageMessage{
			Caption:       proto.String(caption),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mimetype),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	case strings.HasPrefix(mimetype, "video/"):
		up, err := w.Client.Upload(ctx, data, whatsmeow.MediaVideo)
		if err != nil {
			return fmt.Errorf("upload video: %w", err)
		}
		msg = &waProto.Message{VideoMessage: &waProto.VideoMessage{
			Caption:       proto.String(caption),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mimetype),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	default:
		up, err := w.Client.Upload(ctx, data, whatsmeow.MediaDocument)
		if err != nil {
			return fmt.Errorf("upload document: %w", err)
		}
		msg = &waProto.Message{DocumentMessage: &waProto.DocumentMessage{
			Caption:       proto.String(caption),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mimetype),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	}

	_, err = w.Client.SendMessage(ctx, jid, msg)
	return err
}

func (w *WhatsAppClient) MarkRead(ctx context.Context, phone string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	jid, err := userJID(phone)
	if err != nil {
		return err
	}
	ids := make([]types.MessageID, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = types.MessageID(id)
	}
	return w.Client.MarkRead(ctx, ids, time.Now(), jid, jid)
}

// SendPresence shows the composing indicator to the recipient.
func (w *WhatsAppClient) SendPresence(ctx context.Context, phone string) {
	jid, err := userJID(phone)
	if err != nil {
		return
	}
	_ = w.Client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

// EventPayload converts a whatsmeow message event into the webhook payload shape
// so both ingress paths share one normalizer. Returns nil for events that carry nothing to answer.
func EventPayload(evt *events.Message) map[string]any {
	if evt == nil || evt.Message == nil || evt.Info.IsGroup {
		return nil
	}

	payload := map[string]any{
		"event":     "message",
		"sender":    evt.Info.Sender.String(),
		"id":        string(evt.Info.ID),
		"timestamp": evt.Info.Timestamp.Unix(),
		"fromMe":    evt.Info.IsFromMe,
	}

	m := evt.Message
	switch {
	case m.GetConversation() != "":
		payload["message"] = m.GetConversation()
	case m.GetExtendedTextMessage() != nil:
		payload["message"] = m.GetExtendedTextMessage().GetText()
	case m.GetImageMessage() != nil:
		// The media URL is end-to-end encrypted, so only metadata is forwarded.
		payload["message"] = m.GetImageMessage().GetCaption()
		payload["attachment"] = map[string]any{"type": "image", "caption": m.GetImageMessage().GetCaption()}
	case m.GetVideoMessage() != nil:
		payload["message"] = m.GetVideoMessage().GetCaption()
		payload["attachment"] = map[string]any{"type": "video", "caption": m.GetVideoMessage().GetCaption()}
	case m.GetDocumentMessage() != nil:
		payload["attachment"] = map[string]any{"type": "document", "caption": m.GetDocumentMessage().GetCaption()}
	default:
		return nil
	}
	return payload
}
