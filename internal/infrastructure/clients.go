package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"showroom_bot/internal/resilience"
)

// HTTPGateway sends through a wuzapi-style REST gateway. One instance serves every tenant;
// the tenant id is passed as the instance header.
type HTTPGateway struct {
	http *resty.Client
}

func NewHTTPGateway(baseURL, token string) (*HTTPGateway, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("gateway base URL cannot be empty")
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Token", token).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)

	log.Info().Str("baseURL", baseURL).Msg("HTTP messaging gateway configured")
	return &HTTPGateway{http: client}, nil
}

type gatewayResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (g *HTTPGateway) post(ctx context.Context, tenantID, path string, body any) error {
	var out gatewayResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetHeader("X-Instance", tenantID).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post(path)
	if err != nil {
		return resilience.Transient(fmt.Errorf("gateway %s: %w", path, err))
	}
	if resp.IsError() {
		err := fmt.Errorf("gateway %s: status %s: %s", path, resp.Status(), out.Error)
		if resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests {
			return resilience.Transient(err)
		}
		return err
	}
	return nil
}

func (g *HTTPGateway) SendText(ctx context.Context, tenantID, phone, text string) error {
	return g.post(ctx, tenantID, "/chat/send/text", map[string]any{
		"Phone": phone,
		"Body":  text,
	})
}

func (g *HTTPGateway) SendMedia(ctx context.Context, tenantID, phone, mediaURL, caption string) error {
	return g.post(ctx, tenantID, "/chat/send/image", map[string]any{
		"Phone":   phone,
		"Image":   mediaURL,
		"Caption": caption,
	})
}

func (g *HTTPGateway) MarkRead(ctx context.Context, tenantID, phone string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return g.post(ctx, tenantID, "/chat/markread", map[string]any{
		"Id":   messageIDs,
		"Chat": phone + "@s.whatsapp.net",
	})
}

// TelegramGateway delivers replies through a Telegram bot. The phone argument is the chat id.
type TelegramGateway struct {
	Bot *tgbotapi.BotAPI
}

func NewTelegramGateway(token string) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("Telegram gateway connected")
	return &TelegramGateway{Bot: bot}, nil
}

func parseChatID(to string) (int64, error) {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q", to)
	}
	return chatID, nil
}

func (t *TelegramGateway) SendText(_ context.Context, _, phone, text string) error {
	chatID, err := parseChatID(phone)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err = t.Bot.Send(msg)
	return err
}

func (t *TelegramGateway) SendMedia(_ context.Context, _, phone, mediaURL, caption string) error {
	chatID, err := parseChatID(phone)
	if err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(mediaURL))
	photo.Caption = caption
	_, err = t.Bot.Send(photo)
	return err
}

// MarkRead is a no-op: bots have no read receipts.
func (t *TelegramGateway) MarkRead(context.Context, string, string, []string) error {
	return nil
}

// Listen long-polls the bot for updates and hands every private text message to handle
// in the webhook payload shape. It returns when ctx is done.
func (t *TelegramGateway) Listen(ctx context.Context, handle func(payload map[string]any)) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.Bot.GetUpdatesChan(u)
	defer t.Bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if payload := UpdatePayload(update); payload != nil {
				go handle(payload)
			}
		}
	}
}

// UpdatePayload converts a Telegram update into the webhook payload shape. Returns nil
// for updates that carry nothing to answer.
func UpdatePayload(update tgbotapi.Update) map[string]any {
	m := update.Message
	if m == nil || m.Chat == nil || !m.Chat.IsPrivate() {
		return nil
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	payload := map[string]any{
		"event":     "message",
		"sender":    strconv.FormatInt(m.Chat.ID, 10),
		"id":        strconv.Itoa(m.MessageID),
		"timestamp": int64(m.Date),
		"message":   text,
	}
	if len(m.Photo) > 0 {
		payload["attachment"] = map[string]any{"type": "image", "caption": m.Caption}
	}
	return payload
}
