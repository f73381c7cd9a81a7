package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one price observation for a symbol.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	At     time.Time       `json:"at"`
}

// PriceProvider supplies the latest prices for a set of symbols. Symbols
// without a price are omitted from the result.
type PriceProvider interface {
	Prices(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// SignalProducer is an opaque source of candidate recommendations, such as a
// rule engine or an AI service.
type SignalProducer interface {
	Name() string
	Fetch(ctx context.Context) ([]SignalCandidate, error)
}
