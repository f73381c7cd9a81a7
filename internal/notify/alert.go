package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

const alertTimeout = 10 * time.Second

// FailureAlerter posts an operator alert through a ChatSender once a channel
// has failed a number of dispatches in a row. It alerts once per streak and
// again after the channel has recovered and started failing anew.
type FailureAlerter struct {
	sender    ChatSender
	threshold int
	logger    *slog.Logger

	mu      sync.Mutex
	streaks map[string]int
}

// NewFailureAlerter creates a FailureAlerter. A threshold below 1 is treated
// as 1.
func NewFailureAlerter(sender ChatSender, threshold int, logger *slog.Logger) *FailureAlerter {
	if threshold < 1 {
		threshold = 1
	}
	return &FailureAlerter{
		sender:    sender,
		threshold: threshold,
		logger:    logger.With(slog.String("component", "failure_alerter")),
		streaks:   make(map[string]int),
	}
}

// Observe records the outcome of one dispatch on one channel.
func (a *FailureAlerter) Observe(ctx context.Context, sig domain.TradingSignal, out domain.DeliveryOutcome) {
	a.mu.Lock()
	if out.Status == domain.TransmissionSent {
		delete(a.streaks, out.Channel)
		a.mu.Unlock()
		return
	}
	a.streaks[out.Channel]++
	streak := a.streaks[out.Channel]
	a.mu.Unlock()

	if streak != a.threshold {
		return
	}

	actx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()
	if _, err := a.sender.Send(actx, alertMessage(sig, out, streak)); err != nil {
		a.logger.ErrorContext(ctx, "failure alert not sent",
			slog.String("channel", out.Channel),
			slog.String("error", err.Error()),
		)
		return
	}
	a.logger.WarnContext(ctx, "failure alert sent",
		slog.String("channel", out.Channel),
		slog.Int("consecutive_failures", streak),
	)
}

func alertMessage(sig domain.TradingSignal, out domain.DeliveryOutcome, streak int) ChatMessage {
	return ChatMessage{
		Title: fmt.Sprintf("Channel %s is failing", out.Channel),
		Body:  truncate(out.Response, 512),
		Color: colorSell,
		Fields: []ChatField{
			{Name: "Consecutive failures", Value: fmt.Sprintf("%d", streak), Inline: true},
			{Name: "Last signal", Value: sig.ID, Inline: true},
			{Name: "Symbol", Value: sig.Symbol, Inline: true},
		},
	}
}
