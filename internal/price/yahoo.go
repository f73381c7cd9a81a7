// Package price implements the PriceProviders the threshold monitor reads
// from: Yahoo Finance quotes, the shared price cache, and a fixed table.
package price

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// FetchFunc loads quotes for a batch of symbols.
type FetchFunc func(symbols []string) ([]*finance.Quote, error)

// fetchYahoo is the default FetchFunc backed by the Yahoo quote endpoint.
func fetchYahoo(symbols []string) ([]*finance.Quote, error) {
	iter := quote.List(symbols)
	var out []*finance.Quote
	for iter.Next() {
		out = append(out, iter.Quote())
	}
	return out, iter.Err()
}

// Yahoo fetches the latest regular-market price for each symbol in one batch
// request. Every quote it reads is also written to the cache, when one is set,
// so other replicas and the HTTP API see the same prices.
type Yahoo struct {
	fetch  FetchFunc
	cache  domain.PriceCache
	logger *slog.Logger
}

// NewYahoo creates a Yahoo provider. cache may be nil.
func NewYahoo(cache domain.PriceCache, logger *slog.Logger) *Yahoo {
	return &Yahoo{
		fetch:  fetchYahoo,
		cache:  cache,
		logger: logger.With(slog.String("component", "yahoo_prices")),
	}
}

// WithFetch replaces the quote loader.
func (y *Yahoo) WithFetch(fn FetchFunc) *Yahoo {
	y.fetch = fn
	return y
}

// Prices implements domain.PriceProvider. Symbols Yahoo does not know, or
// that have no positive price, are left out of the result.
func (y *Yahoo) Prices(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	if len(symbols) == 0 {
		return map[string]domain.Quote{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	quotes, err := y.fetch(symbols)
	if err != nil {
		return nil, fmt.Errorf("price: yahoo quotes: %w", err)
	}

	wanted := make(map[string]string, len(symbols))
	for _, s := range symbols {
		wanted[strings.ToUpper(s)] = s
	}

	out := make(map[string]domain.Quote, len(quotes))
	for _, q := range quotes {
		if q == nil || q.RegularMarketPrice <= 0 {
			continue
		}
		symbol, ok := wanted[strings.ToUpper(q.Symbol)]
		if !ok {
			continue
		}
		at := time.Now().UTC()
		if q.RegularMarketTime > 0 {
			at = time.Unix(int64(q.RegularMarketTime), 0).UTC()
		}
		qt := domain.Quote{
			Symbol: symbol,
			Price:  decimal.NewFromFloat(q.RegularMarketPrice),
			At:     at,
		}
		out[symbol] = qt

		if y.cache != nil {
			if err := y.cache.SetPrice(ctx, symbol, qt.Price, qt.At); err != nil {
				y.logger.WarnContext(ctx, "price cache write failed",
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return out, nil
}

var _ domain.PriceProvider = (*Yahoo)(nil)
