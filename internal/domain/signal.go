package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalAction is the recommended trading action.
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// Valid reports whether a is a known action.
func (a SignalAction) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}

// SignalStatus is the lifecycle state of a trading signal. PENDING is the
// only non-terminal state.
type SignalStatus string

const (
	SignalStatusPending   SignalStatus = "PENDING"
	SignalStatusExecuted  SignalStatus = "EXECUTED"
	SignalStatusCancelled SignalStatus = "CANCELLED"
	SignalStatusExpired   SignalStatus = "EXPIRED"
)

// Valid reports whether s is a known status.
func (s SignalStatus) Valid() bool {
	switch s {
	case SignalStatusPending, SignalStatusExecuted, SignalStatusCancelled, SignalStatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s SignalStatus) Terminal() bool {
	return s != SignalStatusPending
}

// CanTransition reports whether a signal in status from may move to status to.
func CanTransition(from, to SignalStatus) bool {
	if from.Terminal() || !to.Valid() {
		return false
	}
	return to != SignalStatusPending
}

// TradingSignal is a buy/sell/hold recommendation. Close events raised by the
// threshold monitor are represented as signals too, with PositionID set.
type TradingSignal struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	Action      SignalAction     `json:"action"`
	Confidence  float64          `json:"confidence"`
	EntryPrice  *decimal.Decimal `json:"entry_price,omitempty"`
	TargetPrice *decimal.Decimal `json:"target_price,omitempty"`
	StopPrice   *decimal.Decimal `json:"stop_price,omitempty"`
	Rationale   string           `json:"rationale,omitempty"`
	Source      string           `json:"source,omitempty"`
	PositionID  string           `json:"position_id,omitempty"`
	Status      SignalStatus     `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Price returns the most relevant price carried by the signal: the entry
// price when present, otherwise the stop or target.
func (s TradingSignal) Price() decimal.Decimal {
	for _, p := range []*decimal.Decimal{s.EntryPrice, s.StopPrice, s.TargetPrice} {
		if p != nil {
			return *p
		}
	}
	return decimal.Zero
}

// ConfidenceLevel buckets the confidence score for display.
func (s TradingSignal) ConfidenceLevel() string {
	switch {
	case s.Confidence >= 0.8:
		return "HIGH"
	case s.Confidence >= 0.6:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// IsCloseEvent reports whether the signal announces a position close.
func (s TradingSignal) IsCloseEvent() bool {
	return s.PositionID != ""
}

// SignalCandidate is an unsaved recommendation supplied by a producer or an
// API caller.
type SignalCandidate struct {
	Symbol      string           `json:"symbol"`
	Action      SignalAction     `json:"action"`
	Confidence  float64          `json:"confidence"`
	EntryPrice  *decimal.Decimal `json:"entry_price,omitempty"`
	TargetPrice *decimal.Decimal `json:"target_price,omitempty"`
	StopPrice   *decimal.Decimal `json:"stop_price,omitempty"`
	Rationale   string           `json:"rationale,omitempty"`
	Source      string           `json:"source,omitempty"`
}
