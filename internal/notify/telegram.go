package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender delivers messages via the Telegram Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *resty.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID. baseURL overrides the public API endpoint when non-empty.
func NewTelegramSender(token, chatID, baseURL string) *TelegramSender {
	if baseURL == "" {
		baseURL = telegramAPI
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(10 * time.Second)
	return &TelegramSender{token: token, chatID: chatID, client: client}
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }

// Destination returns the target chat.
func (t *TelegramSender) Destination() string { return t.chatID }

// Send posts msg to the configured chat using sendMessage with HTML markup.
func (t *TelegramSender) Send(ctx context.Context, msg ChatMessage) (string, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":    t.chatID,
			"text":       telegramHTML(msg),
			"parse_mode": "HTML",
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.token))
	if err != nil {
		return "", requestError("telegram", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode(), truncate(resp.String(), maxResponseLen))
	}
	return resp.String(), nil
}

func telegramHTML(msg ChatMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(msg.Title))
	for _, f := range msg.Fields {
		fmt.Fprintf(&b, "%s: <code>%s</code>\n", html.EscapeString(f.Name), html.EscapeString(f.Value))
	}
	if msg.Body != "" {
		b.WriteString("\n" + html.EscapeString(msg.Body))
	}
	return strings.TrimRight(b.String(), "\n")
}
