package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSide is the direction of a held trade.
type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
)

// Valid reports whether s is a known side.
func (s PositionSide) Valid() bool {
	return s == SideLong || s == SideShort
}

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// CloseReason records what caused a position to close.
type CloseReason string

const (
	CloseReasonManual     CloseReason = "manual"
	CloseReasonStopLoss   CloseReason = "stop_loss"
	CloseReasonTakeProfit CloseReason = "take_profit"
)

// Position represents an open or historical trading position. Positions are
// never deleted; a closed position stays for audit and history.
type Position struct {
	ID            string           `json:"id"`
	AccountID     string           `json:"account_id"`
	Symbol        string           `json:"symbol"`
	Side          PositionSide     `json:"side"`
	Size          decimal.Decimal  `json:"size"`
	EntryPrice    decimal.Decimal  `json:"entry_price"`
	CurrentPrice  *decimal.Decimal `json:"current_price,omitempty"`
	StopLoss      *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit    *decimal.Decimal `json:"take_profit,omitempty"`
	Status        PositionStatus   `json:"status"`
	UnrealizedPnL decimal.Decimal  `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal  `json:"realized_pnl"`
	PnLPercent    decimal.Decimal  `json:"pnl_percent"`
	CloseReason   CloseReason      `json:"close_reason,omitempty"`
	ExitPrice     *decimal.Decimal `json:"exit_price,omitempty"`
	OpenedAt      time.Time        `json:"opened_at"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// IsOpen reports whether the position is still open.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// PnLAt returns the profit or loss of the position if it were valued at price.
// LONG gains when price rises above entry, SHORT gains when it falls below.
func (p Position) PnLAt(price decimal.Decimal) decimal.Decimal {
	if p.Side == SideShort {
		return p.EntryPrice.Sub(price).Mul(p.Size)
	}
	return price.Sub(p.EntryPrice).Mul(p.Size)
}

// PnLPercentOf expresses pnl as a percentage of the position's entry notional.
func (p Position) PnLPercentOf(pnl decimal.Decimal) decimal.Decimal {
	notional := p.EntryPrice.Mul(p.Size)
	if notional.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(notional).Mul(decimal.NewFromInt(100))
}

// Breach reports which threshold, if any, price crosses for this position.
// For LONG a stop triggers at or below the stop-loss and a target at or above
// the take-profit; SHORT is inverted. Stop-loss wins when both are crossed.
func (p Position) Breach(price decimal.Decimal) (CloseReason, bool) {
	switch p.Side {
	case SideLong:
		if p.StopLoss != nil && price.LessThanOrEqual(*p.StopLoss) {
			return CloseReasonStopLoss, true
		}
		if p.TakeProfit != nil && price.GreaterThanOrEqual(*p.TakeProfit) {
			return CloseReasonTakeProfit, true
		}
	case SideShort:
		if p.StopLoss != nil && price.GreaterThanOrEqual(*p.StopLoss) {
			return CloseReasonStopLoss, true
		}
		if p.TakeProfit != nil && price.LessThanOrEqual(*p.TakeProfit) {
			return CloseReasonTakeProfit, true
		}
	}
	return "", false
}
