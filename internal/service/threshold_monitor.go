package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

const closeSignalSource = "threshold_monitor"

// ThresholdMonitor reprices open positions and closes those that cross their
// stop-loss or take-profit. Every close it performs is announced as an
// EXECUTED signal through the dispatcher.
type ThresholdMonitor struct {
	positions  *PositionService
	signals    *SignalService
	prices     domain.PriceProvider
	dispatcher SignalDispatcher
	logger     *slog.Logger
}

// NewThresholdMonitor creates a ThresholdMonitor.
func NewThresholdMonitor(
	positions *PositionService,
	signals *SignalService,
	prices domain.PriceProvider,
	dispatcher SignalDispatcher,
	logger *slog.Logger,
) *ThresholdMonitor {
	return &ThresholdMonitor{
		positions:  positions,
		signals:    signals,
		prices:     prices,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "threshold_monitor")),
	}
}

// Periodic returns the monitoring loop. With a non-nil locker only one
// replica runs each pass.
func (m *ThresholdMonitor) Periodic(interval time.Duration, locker domain.LockManager) *Periodic {
	return NewPeriodic("threshold_monitor", interval, Exclusive(locker, "threshold_monitor", interval, m.Tick), m.logger)
}

// Tick runs one monitoring pass over every open position. Failures on a
// single position are logged and do not stop the pass.
func (m *ThresholdMonitor) Tick(ctx context.Context) error {
	open, err := m.positions.ListAllOpen(ctx)
	if err != nil {
		return fmt.Errorf("threshold_monitor: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(open))
	symbols := make([]string, 0, len(open))
	for _, pos := range open {
		if _, ok := seen[pos.Symbol]; !ok {
			seen[pos.Symbol] = struct{}{}
			symbols = append(symbols, pos.Symbol)
		}
	}

	quotes, err := m.prices.Prices(ctx, symbols)
	if err != nil {
		return fmt.Errorf("threshold_monitor: fetch prices: %w", err)
	}

	for _, pos := range open {
		quote, ok := quotes[pos.Symbol]
		if !ok {
			m.logger.DebugContext(ctx, "no price for symbol, skipping",
				slog.String("position_id", pos.ID),
				slog.String("symbol", pos.Symbol),
			)
			continue
		}
		m.check(ctx, pos.ID, quote.Price)
	}
	return nil
}

// Evaluate reprices one position and closes it on breach. It backs the
// price-tick endpoint, which pushes prices instead of waiting for a tick.
func (m *ThresholdMonitor) Evaluate(ctx context.Context, positionID string, price decimal.Decimal) (domain.Position, error) {
	pos, err := m.positions.Reprice(ctx, positionID, price)
	if err != nil {
		return domain.Position{}, err
	}
	if !pos.IsOpen() {
		return pos, nil
	}
	reason, breached := pos.Breach(price)
	if !breached {
		return pos, nil
	}
	closed, _, err := m.Close(ctx, positionID, price, reason)
	return closed, err
}

// ApplyTick evaluates every open position in symbol against price and
// returns the positions as they stand afterwards. A failing position is
// logged and skipped, and the failures are joined into the returned error.
func (m *ThresholdMonitor) ApplyTick(ctx context.Context, symbol string, price decimal.Decimal) ([]domain.Position, error) {
	if symbol == "" {
		return nil, domain.NewValidationError("symbol", "is required")
	}
	if !price.IsPositive() {
		return nil, domain.NewValidationError("price", "must be positive")
	}
	open, err := m.positions.ListAllOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("threshold_monitor: %w", err)
	}
	var (
		out  []domain.Position
		errs []error
	)
	for _, pos := range open {
		if pos.Symbol != symbol {
			continue
		}
		updated, err := m.Evaluate(ctx, pos.ID, price)
		if err != nil {
			m.logger.ErrorContext(ctx, "evaluate position failed",
				slog.String("position_id", pos.ID),
				slog.String("price", price.String()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		out = append(out, updated)
	}
	return out, errors.Join(errs...)
}

func (m *ThresholdMonitor) check(ctx context.Context, positionID string, price decimal.Decimal) {
	if _, err := m.Evaluate(ctx, positionID, price); err != nil {
		m.logger.ErrorContext(ctx, "evaluate position failed",
			slog.String("position_id", positionID),
			slog.String("price", price.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes a position and, when this call performed the close, records
// and dispatches the close signal. Manual closes go through here too so they
// are announced the same way.
func (m *ThresholdMonitor) Close(ctx context.Context, positionID string, exitPrice decimal.Decimal, reason domain.CloseReason) (domain.Position, bool, error) {
	pos, closed, err := m.positions.Close(ctx, positionID, exitPrice, reason)
	if err != nil || !closed {
		return pos, closed, err
	}

	sig, err := m.signals.RecordExecuted(ctx, closeSignal(pos))
	if err != nil {
		m.logger.ErrorContext(ctx, "record close signal failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
		sig = closeSignal(pos)
	}
	m.dispatcher.DispatchAsync(sig)
	return pos, true, nil
}

// closeSignal builds the announcement for a closed position. Closing a LONG
// is a sell, closing a SHORT is a buy.
func closeSignal(pos domain.Position) domain.TradingSignal {
	action := domain.ActionSell
	if pos.Side == domain.SideShort {
		action = domain.ActionBuy
	}
	now := time.Now().UTC()
	return domain.TradingSignal{
		Symbol:      pos.Symbol,
		Action:      action,
		Confidence:  1,
		EntryPrice:  pos.ExitPrice,
		TargetPrice: pos.TakeProfit,
		StopPrice:   pos.StopLoss,
		Rationale: fmt.Sprintf("%s position closed (%s) at %s, realized P&L %s",
			pos.Side, pos.CloseReason, pos.ExitPrice, pos.RealizedPnL),
		Source:     closeSignalSource,
		PositionID: pos.ID,
		Status:     domain.SignalStatusExecuted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
