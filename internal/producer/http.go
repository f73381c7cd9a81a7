// Package producer implements SignalProducers: an HTTP client for an external
// recommendation service and a fixed list for demos and tests.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// HTTP polls a recommendation endpoint that answers GET with a JSON array of
// signal candidates, or an object wrapping one under "signals".
type HTTP struct {
	url    string
	client *resty.Client
}

// NewHTTP creates an HTTP producer. apiKey, when set, is sent as a bearer
// token.
func NewHTTP(url, apiKey string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", "signalhub/1.0")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTP{url: url, client: client}
}

// Name implements domain.SignalProducer.
func (h *HTTP) Name() string { return "http" }

// Fetch implements domain.SignalProducer.
func (h *HTTP) Fetch(ctx context.Context) ([]domain.SignalCandidate, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		Get(h.url)
	if err != nil {
		return nil, fmt.Errorf("producer: fetch %s: %w", h.url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("producer: unexpected status %d from %s", resp.StatusCode(), h.url)
	}
	return decodeCandidates(resp.Body())
}

func decodeCandidates(body []byte) ([]domain.SignalCandidate, error) {
	var list []domain.SignalCandidate
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Signals []domain.SignalCandidate `json:"signals"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("producer: decode candidates: %w", err)
	}
	return wrapped.Signals, nil
}

var _ domain.SignalProducer = (*HTTP)(nil)
