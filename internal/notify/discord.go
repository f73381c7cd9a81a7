package notify

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// DiscordSender delivers messages via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	username   string
	client     *resty.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL, username string) *DiscordSender {
	client := resty.New()
	client.SetTimeout(10 * time.Second)
	return &DiscordSender{webhookURL: webhookURL, username: username, client: client}
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string { return "discord" }

// Destination returns the webhook host without its secret path.
func (d *DiscordSender) Destination() string {
	u, err := url.Parse(d.webhookURL)
	if err != nil {
		return "webhook"
	}
	return u.Host
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

// Send posts msg as a single embed. Discord answers 204 No Content on
// success unless the webhook is called with ?wait=true.
func (d *DiscordSender) Send(ctx context.Context, msg ChatMessage) (string, error) {
	embed := discordEmbed{
		Title:       msg.Title,
		Description: msg.Body,
		Color:       msg.Color,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, discordField(f))
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(discordPayload{Username: d.username, Embeds: []discordEmbed{embed}}).
		Post(d.webhookURL)
	if err != nil {
		return "", requestError("discord", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode(), truncate(resp.String(), maxResponseLen))
	}
	if body := resp.String(); body != "" {
		return body, nil
	}
	return fmt.Sprintf("status %d", resp.StatusCode()), nil
}
