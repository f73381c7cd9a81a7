package notify

import (
	"context"
	"sync"
)

// FixedSender records messages instead of posting them. It stands in for a
// chat platform whose credentials are not configured, and in tests.
type FixedSender struct {
	name string
	err  error

	mu   sync.Mutex
	sent []ChatMessage
}

// NewFixedSender creates a FixedSender. A non-nil err makes every Send fail.
func NewFixedSender(name string, err error) *FixedSender {
	return &FixedSender{name: name, err: err}
}

func (f *FixedSender) Name() string { return f.name }

func (f *FixedSender) Destination() string { return "fixed" }

func (f *FixedSender) Send(ctx context.Context, msg ChatMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return "recorded", nil
}

// Sent returns the messages recorded so far.
func (f *FixedSender) Sent() []ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ChatMessage(nil), f.sent...)
}
