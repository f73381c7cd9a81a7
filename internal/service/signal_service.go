package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalhub/internal/domain"
	"github.com/alanyoungcy/signalhub/internal/events"
)

const defaultSignalListLimit = 50

// SubmitSignalRequest is a new recommendation. When Wait is set the caller
// blocks until every channel has reported.
type SubmitSignalRequest struct {
	domain.SignalCandidate
	Wait bool `json:"wait,omitempty"`
}

// SubmitResult is the saved signal and, for synchronous submits, the
// per-channel delivery outcomes.
type SubmitResult struct {
	Signal     domain.TradingSignal              `json:"signal"`
	Deliveries map[string]domain.DeliveryOutcome `json:"deliveries,omitempty"`
}

func validateCandidate(c domain.SignalCandidate) error {
	switch {
	case c.Symbol == "":
		return domain.NewValidationError("symbol", "is required")
	case !c.Action.Valid():
		return domain.NewValidationError("action", fmt.Sprintf("unknown action %q", c.Action))
	case c.Confidence < 0 || c.Confidence > 1:
		return domain.NewValidationError("confidence", "must be within [0, 1]")
	}
	prices := map[string]*decimal.Decimal{
		"entry_price":  c.EntryPrice,
		"target_price": c.TargetPrice,
		"stop_price":   c.StopPrice,
	}
	for field, p := range prices {
		if p != nil && p.IsNegative() {
			return domain.NewValidationError(field, "must not be negative")
		}
	}
	return nil
}

// SignalService owns the signal lifecycle: PENDING until executed, cancelled
// or expired, never back.
type SignalService struct {
	signals    domain.SignalStore
	events     events.Publisher
	dispatcher SignalDispatcher
	queues     QueuePurger
	locks      *KeyedMutex
	logger     *slog.Logger
}

// NewSignalService creates a SignalService. queues may be nil when no polling
// clients are served.
func NewSignalService(
	signals domain.SignalStore,
	publisher events.Publisher,
	dispatcher SignalDispatcher,
	queues QueuePurger,
	logger *slog.Logger,
) *SignalService {
	return &SignalService{
		signals:    signals,
		events:     publisher,
		dispatcher: dispatcher,
		queues:     queues,
		locks:      NewKeyedMutex(),
		logger:     logger.With(slog.String("component", "signal_service")),
	}
}

// Submit validates and stores a PENDING signal, then hands it to the
// dispatcher.
func (s *SignalService) Submit(ctx context.Context, req SubmitSignalRequest) (SubmitResult, error) {
	if err := validateCandidate(req.SignalCandidate); err != nil {
		return SubmitResult{}, err
	}

	now := time.Now().UTC()
	c := req.SignalCandidate
	sig := domain.TradingSignal{
		ID:          uuid.NewString(),
		Symbol:      c.Symbol,
		Action:      c.Action,
		Confidence:  c.Confidence,
		EntryPrice:  c.EntryPrice,
		TargetPrice: c.TargetPrice,
		StopPrice:   c.StopPrice,
		Rationale:   c.Rationale,
		Source:      c.Source,
		Status:      domain.SignalStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.signals.Create(ctx, sig); err != nil {
		return SubmitResult{}, fmt.Errorf("signal_service: create signal: %w", err)
	}

	s.logger.InfoContext(ctx, "signal submitted",
		slog.String("signal_id", sig.ID),
		slog.String("symbol", sig.Symbol),
		slog.String("action", string(sig.Action)),
		slog.Float64("confidence", sig.Confidence),
		slog.String("source", sig.Source),
	)

	res := SubmitResult{Signal: sig}
	if req.Wait {
		res.Deliveries = s.dispatcher.Dispatch(ctx, sig)
	} else {
		s.dispatcher.DispatchAsync(sig)
	}
	return res, nil
}

// RecordExecuted stores a signal that is born EXECUTED, such as the close
// event announced by the threshold monitor.
func (s *SignalService) RecordExecuted(ctx context.Context, sig domain.TradingSignal) (domain.TradingSignal, error) {
	now := time.Now().UTC()
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = now
	}
	sig.UpdatedAt = now
	sig.Status = domain.SignalStatusExecuted

	if err := s.signals.Create(ctx, sig); err != nil {
		return domain.TradingSignal{}, fmt.Errorf("signal_service: record executed: %w", err)
	}
	return sig, nil
}

// Transition moves a PENDING signal to a terminal status.
func (s *SignalService) Transition(ctx context.Context, id string, to domain.SignalStatus) (domain.TradingSignal, error) {
	if !to.Valid() {
		return domain.TradingSignal{}, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", to))
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	sig, err := s.signals.GetByID(ctx, id)
	if err != nil {
		return domain.TradingSignal{}, fmt.Errorf("signal_service: get signal %q: %w", id, err)
	}
	if !domain.CanTransition(sig.Status, to) {
		return domain.TradingSignal{}, fmt.Errorf("signal_service: %s -> %s: %w", sig.Status, to, domain.ErrInvalidTransition)
	}

	sig.Status = to
	sig.UpdatedAt = time.Now().UTC()
	if err := s.signals.Update(ctx, sig); err != nil {
		return domain.TradingSignal{}, fmt.Errorf("signal_service: update signal %q: %w", id, err)
	}

	s.afterTerminal(ctx, []domain.TradingSignal{sig})
	s.logger.InfoContext(ctx, "signal transitioned",
		slog.String("signal_id", sig.ID),
		slog.String("status", string(to)),
	)
	return sig, nil
}

// ExpireOlderThan expires every PENDING signal created more than maxAge ago
// and returns how many were expired.
func (s *SignalService) ExpireOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	stale, err := s.signals.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("signal_service: list pending: %w", err)
	}

	var expired []domain.TradingSignal
	for _, candidate := range stale {
		sig, ok, err := s.expireOne(ctx, candidate.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "expire signal failed",
				slog.String("signal_id", candidate.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			expired = append(expired, sig)
		}
	}

	if len(expired) > 0 {
		s.afterTerminal(ctx, expired)
		s.logger.InfoContext(ctx, "signals expired", slog.Int("count", len(expired)))
	}
	return len(expired), nil
}

// expireOne re-reads the signal under its lock so a concurrent transition
// wins over the sweep.
func (s *SignalService) expireOne(ctx context.Context, id string) (domain.TradingSignal, bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sig, err := s.signals.GetByID(ctx, id)
	if err != nil {
		return domain.TradingSignal{}, false, err
	}
	if sig.Status != domain.SignalStatusPending {
		return sig, false, nil
	}
	sig.Status = domain.SignalStatusExpired
	sig.UpdatedAt = time.Now().UTC()
	if err := s.signals.Update(ctx, sig); err != nil {
		return domain.TradingSignal{}, false, err
	}
	return sig, true, nil
}

// afterTerminal announces status changes and pulls withdrawn signals out of
// polling queues.
func (s *SignalService) afterTerminal(ctx context.Context, sigs []domain.TradingSignal) {
	var withdrawn []string
	for _, sig := range sigs {
		if err := s.events.PublishSignal(ctx, events.SignalUpdated, sig); err != nil {
			s.logger.WarnContext(ctx, "publish event failed",
				slog.String("signal_id", sig.ID),
				slog.String("error", err.Error()),
			)
		}
		if sig.Status == domain.SignalStatusExpired || sig.Status == domain.SignalStatusCancelled {
			withdrawn = append(withdrawn, sig.ID)
		}
	}
	if s.queues == nil || len(withdrawn) == 0 {
		return
	}
	if err := s.queues.Purge(ctx, withdrawn); err != nil {
		s.logger.WarnContext(ctx, "purge pending queues failed",
			slog.Int("count", len(withdrawn)),
			slog.String("error", err.Error()),
		)
	}
}

// Get returns a single signal.
func (s *SignalService) Get(ctx context.Context, id string) (domain.TradingSignal, error) {
	sig, err := s.signals.GetByID(ctx, id)
	if err != nil {
		return domain.TradingSignal{}, fmt.Errorf("signal_service: get signal %q: %w", id, err)
	}
	return sig, nil
}

// ListRecent returns the newest signals.
func (s *SignalService) ListRecent(ctx context.Context, limit int) ([]domain.TradingSignal, error) {
	if limit <= 0 {
		limit = defaultSignalListLimit
	}
	list, err := s.signals.ListRecent(ctx, domain.ListOpts{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("signal_service: list recent: %w", err)
	}
	return list, nil
}

// ExpirySweeper returns a periodic task that expires signals older than
// maxAge every interval.
func (s *SignalService) ExpirySweeper(interval, maxAge time.Duration) *Periodic {
	return NewPeriodic("signal_expiry", interval, func(ctx context.Context) error {
		_, err := s.ExpireOlderThan(ctx, maxAge)
		return err
	}, s.logger)
}
