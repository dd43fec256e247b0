// Package fundamentals bridges fundamentals-cache misses to the stock data provider.
package fundamentals

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/aristath/stocktracker/internal/clients/alphavantage"
	"github.com/aristath/stocktracker/internal/domain"
)

// PortfolioAppender appends a stock to a user's portfolio
type PortfolioAppender interface {
	AddStock(ctx context.Context, username string, f domain.Fundamentals) (domain.Stock, error)
}

// CacheWriter writes fundamentals through to the cache (first write wins)
type CacheWriter interface {
	Put(ctx context.Context, symbol string, f domain.Fundamentals) (bool, error)
}

// Fetcher calls the provider on cache misses and writes the result through to the
// portfolio and the cache. Concurrent fetches of one symbol share a single provider call.
type Fetcher struct {
	client alphavantage.ClientInterface
	store  PortfolioAppender
	cache  CacheWriter
	group  singleflight.Group
	log    zerolog.Logger
}

// NewFetcher creates a new fundamentals fetcher
func NewFetcher(client alphavantage.ClientInterface, store PortfolioAppender, cache CacheWriter, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		store:  store,
		cache:  cache,
		log:    log.With().Str("component", "fundamentals_fetcher").Logger(),
	}
}

// Fetch returns fresh fundamentals for symbol from the provider, named after
// symbol even when the provider reports another ticker (e.g. BRK.B as BRK-B).
// Callers waiting on the same symbol share the in-flight request.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) (domain.Fundamentals, error) {
	// The shared call must not die with whichever caller happened to start it
	callCtx := context.WithoutCancel(ctx)

	v, err, shared := f.group.Do(symbol, func() (interface{}, error) {
		overview, err := f.client.GetCompanyOverview(callCtx, symbol)
		if err != nil {
			return nil, err
		}
		fundamentals := overview.ToFundamentals()
		// Entries, duplicate checks, deletes and cache keys all use the requested symbol
		if fundamentals.Name != symbol {
			f.log.Debug().Str("symbol", symbol).Str("provider_symbol", fundamentals.Name).Msg("Provider returned a different symbol")
			fundamentals.Name = symbol
		}
		return fundamentals, nil
	})
	if err != nil {
		f.log.Error().Err(err).Str("symbol", symbol).Msg("API Call Error")
		return domain.Fundamentals{}, fmt.Errorf("failed to fetch fundamentals for %s: %w", symbol, err)
	}

	if shared {
		f.log.Debug().Str("symbol", symbol).Msg("Joined in-flight fundamentals fetch")
	}

	return v.(domain.Fundamentals), nil
}

// FetchAndAdd fetches symbol, appends it to the user's portfolio, then writes the
// cache. A cache write failure is logged and does not fail the operation.
func (f *Fetcher) FetchAndAdd(ctx context.Context, symbol, username string) (domain.Stock, error) {
	fundamentals, err := f.Fetch(ctx, symbol)
	if err != nil {
		return domain.Stock{}, err
	}

	stock, err := f.store.AddStock(ctx, username, fundamentals)
	if err != nil {
		f.log.Error().Err(err).Str("symbol", symbol).Str("username", username).Msg("Database Update Error")
		return domain.Stock{}, err
	}

	stored, err := f.cache.Put(ctx, symbol, fundamentals)
	if err != nil {
		f.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to write fundamentals to cache")
	} else if stored {
		f.log.Debug().Str("symbol", symbol).Msg("Cached fundamentals")
	}

	return stock, nil
}
