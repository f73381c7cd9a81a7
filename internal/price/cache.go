package price

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// Cache reads prices another process has written to the shared price cache.
// Quotes older than maxAge are treated as missing.
type Cache struct {
	cache  domain.PriceCache
	maxAge time.Duration
	now    func() time.Time
}

// NewCache creates a Cache provider. A zero maxAge accepts quotes of any age.
func NewCache(cache domain.PriceCache, maxAge time.Duration) *Cache {
	return &Cache{cache: cache, maxAge: maxAge, now: time.Now}
}

// Prices implements domain.PriceProvider.
func (c *Cache) Prices(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	quotes, err := c.cache.GetPrices(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("price: read cache: %w", err)
	}
	if c.maxAge <= 0 {
		return quotes, nil
	}
	cutoff := c.now().Add(-c.maxAge)
	for symbol, q := range quotes {
		if q.At.Before(cutoff) {
			delete(quotes, symbol)
		}
	}
	return quotes, nil
}

var _ domain.PriceProvider = (*Cache)(nil)
