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

// OpenPositionRequest carries the caller-supplied fields of a new position.
type OpenPositionRequest struct {
	AccountID  string              `json:"account_id"`
	Symbol     string              `json:"symbol"`
	Side       domain.PositionSide `json:"side"`
	Size       decimal.Decimal     `json:"size"`
	EntryPrice decimal.Decimal     `json:"entry_price"`
	StopLoss   *decimal.Decimal    `json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal    `json:"take_profit,omitempty"`

	// Balance and RiskPct size the position from its stop when Size is
	// omitted: hitting the stop loses RiskPct percent of Balance.
	Balance *decimal.Decimal `json:"balance,omitempty"`
	RiskPct *decimal.Decimal `json:"risk_pct,omitempty"`
}

// resolveSize fills Size from Balance and RiskPct when it was not given.
func (r *OpenPositionRequest) resolveSize() error {
	if !r.Size.IsZero() || (r.Balance == nil && r.RiskPct == nil) {
		return nil
	}
	switch {
	case r.Balance == nil:
		return domain.NewValidationError("balance", "is required with risk_pct")
	case r.RiskPct == nil:
		return domain.NewValidationError("risk_pct", "is required with balance")
	case r.StopLoss == nil:
		return domain.NewValidationError("stop_loss", "is required to size by risk")
	}
	size, err := PositionSize(*r.Balance, *r.RiskPct, r.EntryPrice, *r.StopLoss)
	if err != nil {
		return err
	}
	r.Size = size
	return nil
}

func (r OpenPositionRequest) validate() error {
	switch {
	case r.AccountID == "":
		return domain.NewValidationError("account_id", "is required")
	case r.Symbol == "":
		return domain.NewValidationError("symbol", "is required")
	case !r.Side.Valid():
		return domain.NewValidationError("side", fmt.Sprintf("unknown side %q", r.Side))
	case !r.Size.IsPositive():
		return domain.NewValidationError("size", "must be positive")
	case !r.EntryPrice.IsPositive():
		return domain.NewValidationError("entry_price", "must be positive")
	}
	return validateStops(r.StopLoss, r.TakeProfit)
}

func validateStops(stopLoss, takeProfit *decimal.Decimal) error {
	if stopLoss != nil && !stopLoss.IsPositive() {
		return domain.NewValidationError("stop_loss", "must be positive")
	}
	if takeProfit != nil && !takeProfit.IsPositive() {
		return domain.NewValidationError("take_profit", "must be positive")
	}
	return nil
}

// PositionService is the position ledger: it opens positions, marks them to
// market and closes them. Mutations of one position are serialized; different
// positions proceed in parallel.
type PositionService struct {
	positions domain.PositionStore
	events    events.Publisher
	audit     domain.AuditStore
	locks     *KeyedMutex
	logger    *slog.Logger
}

// NewPositionService creates a PositionService with all required dependencies.
func NewPositionService(
	positions domain.PositionStore,
	publisher events.Publisher,
	audit domain.AuditStore,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		events:    publisher,
		audit:     audit,
		locks:     NewKeyedMutex(),
		logger:    logger.With(slog.String("component", "position_service")),
	}
}

// Open validates req and records a new OPEN position. CurrentPrice stays
// unset until the first Reprice.
func (s *PositionService) Open(ctx context.Context, req OpenPositionRequest) (domain.Position, error) {
	if err := req.resolveSize(); err != nil {
		return domain.Position{}, err
	}
	if err := req.validate(); err != nil {
		return domain.Position{}, err
	}

	now := time.Now().UTC()
	pos := domain.Position{
		ID:            uuid.NewString(),
		AccountID:     req.AccountID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Size:          req.Size,
		EntryPrice:    req.EntryPrice,
		StopLoss:      req.StopLoss,
		TakeProfit:    req.TakeProfit,
		Status:        domain.PositionStatusOpen,
		UnrealizedPnL: decimal.Zero,
		RealizedPnL:   decimal.Zero,
		PnLPercent:    decimal.Zero,
		OpenedAt:      now,
		UpdatedAt:     now,
	}

	if err := s.positions.Create(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: create position: %w", err)
	}

	s.publish(ctx, events.PositionOpened, pos)
	s.auditLog(ctx, "position_opened", pos, map[string]any{
		"side":        string(pos.Side),
		"size":        pos.Size.String(),
		"entry_price": pos.EntryPrice.String(),
	})

	s.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("account_id", pos.AccountID),
		slog.String("symbol", pos.Symbol),
		slog.String("side", string(pos.Side)),
		slog.String("entry_price", pos.EntryPrice.String()),
		slog.String("size", pos.Size.String()),
	)
	return pos, nil
}

// Reprice marks an OPEN position to price. A CLOSED position is returned
// unchanged.
func (s *PositionService) Reprice(ctx context.Context, id string, price decimal.Decimal) (domain.Position, error) {
	if !price.IsPositive() {
		return domain.Position{}, domain.NewValidationError("price", "must be positive")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	pos, err := s.positions.GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get position %q: %w", id, err)
	}
	if !pos.IsOpen() {
		return pos, nil
	}

	pnl := pos.PnLAt(price)
	pos.CurrentPrice = &price
	pos.UnrealizedPnL = pnl
	pos.PnLPercent = pos.PnLPercentOf(pnl)
	pos.UpdatedAt = time.Now().UTC()

	if err := s.positions.Update(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: update position %q: %w", id, err)
	}
	s.publish(ctx, events.PositionUpdated, pos)
	return pos, nil
}

// Close closes the position at exitPrice. Closing an already CLOSED position
// returns it unchanged; closed reports whether this call did the closing.
func (s *PositionService) Close(ctx context.Context, id string, exitPrice decimal.Decimal, reason domain.CloseReason) (pos domain.Position, closed bool, err error) {
	if !exitPrice.IsPositive() {
		return domain.Position{}, false, domain.NewValidationError("exit_price", "must be positive")
	}
	if reason == "" {
		reason = domain.CloseReasonManual
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	pos, err = s.positions.GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, false, fmt.Errorf("position_service: get position %q: %w", id, err)
	}
	if !pos.IsOpen() {
		return pos, false, nil
	}

	now := time.Now().UTC()
	realized := pos.PnLAt(exitPrice)
	pos.Status = domain.PositionStatusClosed
	pos.CurrentPrice = &exitPrice
	pos.ExitPrice = &exitPrice
	pos.RealizedPnL = realized
	pos.UnrealizedPnL = decimal.Zero
	pos.PnLPercent = pos.PnLPercentOf(realized)
	pos.CloseReason = reason
	pos.ClosedAt = &now
	pos.UpdatedAt = now

	if err := s.positions.Update(ctx, pos); err != nil {
		return domain.Position{}, false, fmt.Errorf("position_service: close position %q: %w", id, err)
	}

	s.publish(ctx, events.PositionClosed, pos)
	s.auditLog(ctx, "position_closed", pos, map[string]any{
		"exit_price":   exitPrice.String(),
		"realized_pnl": realized.String(),
		"reason":       string(reason),
	})

	s.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("reason", string(reason)),
		slog.String("exit_price", exitPrice.String()),
		slog.String("realized_pnl", realized.String()),
	)
	return pos, true, nil
}

// UpdateStops replaces the stop-loss and take-profit of an OPEN position.
// A nil value clears the threshold.
func (s *PositionService) UpdateStops(ctx context.Context, id string, stopLoss, takeProfit *decimal.Decimal) (domain.Position, error) {
	if err := validateStops(stopLoss, takeProfit); err != nil {
		return domain.Position{}, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	pos, err := s.positions.GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get position %q: %w", id, err)
	}
	if !pos.IsOpen() {
		return domain.Position{}, fmt.Errorf("position_service: position %q is closed: %w", id, domain.ErrInvalidTransition)
	}

	pos.StopLoss = stopLoss
	pos.TakeProfit = takeProfit
	pos.UpdatedAt = time.Now().UTC()
	if err := s.positions.Update(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: update position %q: %w", id, err)
	}
	s.publish(ctx, events.PositionUpdated, pos)
	return pos, nil
}

// Get returns a single position.
func (s *PositionService) Get(ctx context.Context, id string) (domain.Position, error) {
	pos, err := s.positions.GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get position %q: %w", id, err)
	}
	return pos, nil
}

// ListOpen returns the OPEN positions of one account.
func (s *PositionService) ListOpen(ctx context.Context, accountID string) ([]domain.Position, error) {
	list, err := s.positions.ListOpen(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("position_service: list open: %w", err)
	}
	return list, nil
}

// ListAllOpen returns every OPEN position across accounts.
func (s *PositionService) ListAllOpen(ctx context.Context) ([]domain.Position, error) {
	list, err := s.positions.ListAllOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("position_service: list all open: %w", err)
	}
	return list, nil
}

// ListHistory returns an account's positions of any status, newest first.
func (s *PositionService) ListHistory(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Position, error) {
	list, err := s.positions.ListHistory(ctx, accountID, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: list history: %w", err)
	}
	return list, nil
}

func (s *PositionService) publish(ctx context.Context, t events.Type, pos domain.Position) {
	if err := s.events.PublishPosition(ctx, t, pos); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("event", string(t)),
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PositionService) auditLog(ctx context.Context, event string, pos domain.Position, detail map[string]any) {
	detail["position_id"] = pos.ID
	detail["account_id"] = pos.AccountID
	detail["symbol"] = pos.Symbol
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}
