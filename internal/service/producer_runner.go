package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// ProducerRunner pulls candidates from recommendation sources and submits
// them as signals.
type ProducerRunner struct {
	producers []domain.SignalProducer
	signals   *SignalService
	logger    *slog.Logger
}

// NewProducerRunner creates a ProducerRunner over producers.
func NewProducerRunner(signals *SignalService, logger *slog.Logger, producers ...domain.SignalProducer) *ProducerRunner {
	return &ProducerRunner{
		producers: producers,
		signals:   signals,
		logger:    logger.With(slog.String("component", "producer_runner")),
	}
}

// Periodic returns the fetch loop ticking every interval.
func (p *ProducerRunner) Periodic(interval time.Duration) *Periodic {
	return NewPeriodic("producer_runner", interval, p.RunOnce, p.logger)
}

// RunOnce fetches from every producer and submits each valid candidate. A
// failing producer does not stop the others.
func (p *ProducerRunner) RunOnce(ctx context.Context) error {
	var errs []error
	for _, prod := range p.producers {
		candidates, err := prod.Fetch(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("producer %s: %w", prod.Name(), err))
			continue
		}
		submitted := 0
		for _, c := range candidates {
			if c.Source == "" {
				c.Source = prod.Name()
			}
			if _, err := p.signals.Submit(ctx, SubmitSignalRequest{SignalCandidate: c}); err != nil {
				p.logger.WarnContext(ctx, "candidate rejected",
					slog.String("producer", prod.Name()),
					slog.String("symbol", c.Symbol),
					slog.String("error", err.Error()),
				)
				continue
			}
			submitted++
		}
		p.logger.DebugContext(ctx, "producer fetched",
			slog.String("producer", prod.Name()),
			slog.Int("candidates", len(candidates)),
			slog.Int("submitted", submitted),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("producer_runner: %w", errors.Join(errs...))
	}
	return nil
}
