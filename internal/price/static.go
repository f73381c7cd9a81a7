package price

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// Static serves prices from an in-memory table. It backs demos and tests and
// can be updated at runtime with Set.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStatic parses a symbol to decimal string table.
func NewStatic(table map[string]string) (*Static, error) {
	s := &Static{prices: make(map[string]decimal.Decimal, len(table))}
	for symbol, raw := range table {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("price: static price for %s: %w", symbol, err)
		}
		if !d.IsPositive() {
			return nil, fmt.Errorf("price: static price for %s must be positive", symbol)
		}
		s.prices[symbol] = d
	}
	return s, nil
}

// Set replaces the price of one symbol.
func (s *Static) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// Prices implements domain.PriceProvider.
func (s *Static) Prices(_ context.Context, symbols []string) (map[string]domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now().UTC()
	out := make(map[string]domain.Quote, len(symbols))
	for _, symbol := range symbols {
		if p, ok := s.prices[symbol]; ok {
			out[symbol] = domain.Quote{Symbol: symbol, Price: p, At: now}
		}
	}
	return out, nil
}

var _ domain.PriceProvider = (*Static)(nil)
