package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// Enqueuer queues a signal for every live polling client and returns their
// connection ids.
type Enqueuer interface {
	Enqueue(ctx context.Context, sig domain.TradingSignal) ([]string, error)
}

// PollingAdapter hands signals to pull-based clients by queueing them.
type PollingAdapter struct {
	queues Enqueuer
}

// NewPollingAdapter creates a PollingAdapter.
func NewPollingAdapter(queues Enqueuer) *PollingAdapter {
	return &PollingAdapter{queues: queues}
}

func (p *PollingAdapter) Name() string { return "polling" }

func (p *PollingAdapter) Deliver(ctx context.Context, sig domain.TradingSignal) (Delivery, error) {
	ids, err := p.queues.Enqueue(ctx, sig)
	if err != nil {
		return Delivery{}, &domain.ChannelError{Channel: p.Name(), Err: err}
	}
	return Delivery{
		Destination: strings.Join(ids, ","),
		Response:    fmt.Sprintf("queued for %d client(s)", len(ids)),
	}, nil
}
