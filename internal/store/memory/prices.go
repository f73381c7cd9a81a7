package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// PriceCache is an in-process domain.PriceCache.
type PriceCache struct {
	mu     sync.RWMutex
	quotes map[string]domain.Quote
}

// NewPriceCache creates an empty PriceCache.
func NewPriceCache() *PriceCache {
	return &PriceCache{quotes: make(map[string]domain.Quote)}
}

func (c *PriceCache) SetPrice(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[symbol] = domain.Quote{Symbol: symbol, Price: price, At: ts}
	return nil
}

func (c *PriceCache) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[symbol]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	return q.Price, q.At, nil
}

// GetPrices returns quotes for the symbols that have one.
func (c *PriceCache) GetPrices(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.Quote, len(symbols))
	for _, s := range symbols {
		if q, ok := c.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
