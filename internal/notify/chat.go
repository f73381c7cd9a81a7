package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// Embed colors by action.
const (
	colorBuy  = 0x2ECC71
	colorSell = 0xE74C3C
	colorHold = 0xF1C40F
)

// ChatField is one labelled value of a chat message.
type ChatField struct {
	Name   string
	Value  string
	Inline bool
}

// ChatMessage is a platform-neutral rendering of a signal.
type ChatMessage struct {
	Title  string
	Body   string
	Color  int
	Fields []ChatField
}

// ChatSender posts a message to a chat platform and returns the platform's
// response body.
type ChatSender interface {
	Name() string
	Destination() string
	Send(ctx context.Context, msg ChatMessage) (string, error)
}

// ChatAdapter delivers signals through a ChatSender.
type ChatAdapter struct {
	sender ChatSender
}

// NewChatAdapter creates a ChatAdapter.
func NewChatAdapter(sender ChatSender) *ChatAdapter {
	return &ChatAdapter{sender: sender}
}

func (c *ChatAdapter) Name() string { return c.sender.Name() }

func (c *ChatAdapter) Deliver(ctx context.Context, sig domain.TradingSignal) (Delivery, error) {
	resp, err := c.sender.Send(ctx, FormatSignal(sig))
	if err != nil {
		return Delivery{Destination: c.sender.Destination()}, &domain.ChannelError{Channel: c.Name(), Err: err}
	}
	return Delivery{Destination: c.sender.Destination(), Response: resp}, nil
}

// FormatSignal renders sig for chat channels.
func FormatSignal(sig domain.TradingSignal) ChatMessage {
	msg := ChatMessage{
		Title: fmt.Sprintf("%s %s", sig.Symbol, sig.Action),
		Color: colorHold,
	}
	switch sig.Action {
	case domain.ActionBuy:
		msg.Color = colorBuy
	case domain.ActionSell:
		msg.Color = colorSell
	}
	if sig.IsCloseEvent() {
		msg.Title = fmt.Sprintf("%s position closed: %s", sig.Symbol, sig.Action)
	}

	msg.Fields = append(msg.Fields, ChatField{
		Name:   "Confidence",
		Value:  fmt.Sprintf("%s (%.0f%%)", sig.ConfidenceLevel(), sig.Confidence*100),
		Inline: true,
	})
	if sig.EntryPrice != nil {
		msg.Fields = append(msg.Fields, ChatField{Name: "Entry", Value: sig.EntryPrice.String(), Inline: true})
	}
	if sig.TargetPrice != nil {
		msg.Fields = append(msg.Fields, ChatField{Name: "Target", Value: sig.TargetPrice.String(), Inline: true})
	}
	if sig.StopPrice != nil {
		msg.Fields = append(msg.Fields, ChatField{Name: "Stop", Value: sig.StopPrice.String(), Inline: true})
	}

	var body strings.Builder
	if sig.Rationale != "" {
		body.WriteString(sig.Rationale)
	}
	if sig.Source != "" {
		if body.Len() > 0 {
			body.WriteString("\n")
		}
		body.WriteString("Source: " + sig.Source)
	}
	msg.Body = body.String()
	return msg
}

// requestError wraps a transport failure without the request URL, which
// carries the bot token or webhook secret.
func requestError(platform string, err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: send request: %s: %w", platform, uerr.Op, uerr.Err)
	}
	return fmt.Errorf("%s: send request: %w", platform, err)
}
