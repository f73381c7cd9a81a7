package notify

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/signalhub/internal/domain"
	"github.com/alanyoungcy/signalhub/internal/events"
)

// LiveAdapter pushes signals to connected dashboards through the event bus.
type LiveAdapter struct {
	publisher events.Publisher
}

// NewLiveAdapter creates a LiveAdapter.
func NewLiveAdapter(publisher events.Publisher) *LiveAdapter {
	return &LiveAdapter{publisher: publisher}
}

func (l *LiveAdapter) Name() string { return "live" }

func (l *LiveAdapter) Deliver(ctx context.Context, sig domain.TradingSignal) (Delivery, error) {
	if err := l.publisher.PublishSignal(ctx, events.SignalCreated, sig); err != nil {
		return Delivery{}, &domain.ChannelError{
			Channel: l.Name(),
			Err:     fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err),
		}
	}
	return Delivery{Destination: events.Channel, Response: "published"}, nil
}
