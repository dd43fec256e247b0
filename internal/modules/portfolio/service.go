package portfolio

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/stocktracker/internal/domain"
	"github.com/aristath/stocktracker/internal/events"
)

// Store is the subset of the portfolio repository used by the add/remove flow.
type Store interface {
	FindUser(ctx context.Context, username string) (*domain.User, error)
	FindUserWithStock(ctx context.Context, username, stockname string) (*domain.User, error)
	AddStock(ctx context.Context, username string, f domain.Fundamentals) (domain.Stock, error)
	RemoveStock(ctx context.Context, username, stockname string) (int64, error)
}

// CacheReader reads fundamentals from the cache
type CacheReader interface {
	Exists(ctx context.Context, symbol string) (bool, error)
	Get(ctx context.Context, symbol string) (domain.Fundamentals, error)
}

// Fetcher handles cache misses by calling the provider
type Fetcher interface {
	FetchAndAdd(ctx context.Context, symbol, username string) (domain.Stock, error)
}

// EventEmitter publishes domain events
type EventEmitter interface {
	EmitTyped(module string, data events.EventData)
}

// AddSource reports where the values of an added stock came from
type AddSource string

const (
	// SourceExisting means the user already tracked the symbol and nothing changed
	SourceExisting AddSource = "existing"
	// SourceCache means the values were copied from the fundamentals cache
	SourceCache AddSource = "cache"
	// SourceProvider means the values were fetched from the provider
	SourceProvider AddSource = "provider"
)

// AddResult is the outcome of Service.AddStock
type AddResult struct {
	Symbol string
	Source AddSource
	Stock  *domain.Stock
}

// Service orchestrates portfolio mutations.
//
// Adding a stock goes through three stages: a duplicate pre-check against the
// user's portfolio, a cache lookup, and finally the provider fetch. Cache
// failures never fail the add; they are logged and the fetch path is taken.
type Service struct {
	store   Store
	cache   CacheReader
	fetcher Fetcher
	events  EventEmitter
	log     zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(store Store, cache CacheReader, fetcher Fetcher, emitter EventEmitter, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		cache:   cache,
		fetcher: fetcher,
		events:  emitter,
		log:     log.With().Str("service", "portfolio").Logger(),
	}
}

// GetUser returns the user with its portfolio, or domain.ErrUserNotFound.
func (s *Service) GetUser(ctx context.Context, username string) (*domain.User, error) {
	return s.store.FindUser(ctx, username)
}

// AddStock adds rawSymbol to the user's portfolio. The symbol is trimmed and
// uppercased; an already tracked symbol is a no-op.
func (s *Service) AddStock(ctx context.Context, username, rawSymbol string) (*AddResult, error) {
	symbol := domain.NormalizeSymbol(rawSymbol)
	result := &AddResult{Symbol: symbol}

	_, err := s.store.FindUserWithStock(ctx, username, symbol)
	if err == nil {
		result.Source = SourceExisting
		return result, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		s.log.Error().Err(err).Str("username", username).Str("symbol", symbol).Msg("Duplicate check failed")
		return nil, fmt.Errorf("failed to check portfolio: %w", err)
	}

	if f, ok := s.cached(ctx, symbol); ok {
		stock, err := s.store.AddStock(ctx, username, f)
		if err != nil {
			if !errors.Is(err, domain.ErrUserNotFound) {
				s.log.Error().Err(err).Str("username", username).Str("symbol", symbol).Msg("Database Update Error")
			}
			return nil, err
		}
		result.Source = SourceCache
		result.Stock = &stock
		s.emitAdded(username, symbol, SourceCache)
		return result, nil
	}

	stock, err := s.fetcher.FetchAndAdd(ctx, symbol, username)
	if err != nil {
		if s.events != nil && !errors.Is(err, domain.ErrUserNotFound) {
			s.events.EmitTyped("portfolio", &events.ErrorEventData{
				Error:   err.Error(),
				Context: map[string]interface{}{"username": username, "symbol": symbol},
			})
		}
		return nil, err
	}
	result.Source = SourceProvider
	result.Stock = &stock
	s.emitAdded(username, symbol, SourceProvider)
	return result, nil
}

// RemoveStock removes every entry named rawSymbol from the user's portfolio.
func (s *Service) RemoveStock(ctx context.Context, username, rawSymbol string) (int64, error) {
	symbol := domain.NormalizeSymbol(rawSymbol)

	removed, err := s.store.RemoveStock(ctx, username, symbol)
	if err != nil {
		s.log.Error().Err(err).Str("username", username).Str("symbol", symbol).Msg("Database Update Error")
		return 0, err
	}

	if removed > 0 && s.events != nil {
		s.events.EmitTyped("portfolio", &events.StockRemovedData{
			Username: username,
			Symbol:   symbol,
			Removed:  removed,
		})
	}
	return removed, nil
}

// cached returns the cache entry for symbol. Any cache error counts as a miss.
func (s *Service) cached(ctx context.Context, symbol string) (domain.Fundamentals, bool) {
	exists, err := s.cache.Exists(ctx, symbol)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Cache lookup failed, fetching from provider")
		return domain.Fundamentals{}, false
	}
	if !exists {
		return domain.Fundamentals{}, false
	}

	f, err := s.cache.Get(ctx, symbol)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Cache read failed, fetching from provider")
		return domain.Fundamentals{}, false
	}
	return f, true
}

func (s *Service) emitAdded(username, symbol string, source AddSource) {
	if s.events == nil {
		return
	}
	s.events.EmitTyped("portfolio", &events.StockAddedData{
		Username: username,
		Symbol:   symbol,
		Source:   string(source),
	})
}
