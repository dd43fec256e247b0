package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/stocktracker/internal/config"
	"github.com/aristath/stocktracker/internal/domain"
	"github.com/aristath/stocktracker/internal/events"
)

// EntryStore enumerates and re-persists portfolio entries
type EntryStore interface {
	ListEntries(ctx context.Context) ([]domain.PortfolioEntry, error)
	SaveEntry(ctx context.Context, entry domain.PortfolioEntry) error
}

// FundamentalsSource fetches fresh fundamentals for a symbol
type FundamentalsSource interface {
	Fetch(ctx context.Context, symbol string) (domain.Fundamentals, error)
}

// CacheReplacer overwrites a cache entry
type CacheReplacer interface {
	Replace(ctx context.Context, symbol string, f domain.Fundamentals) error
}

// SweepResult summarises one refresh sweep
type SweepResult struct {
	Mode      string
	Processed int
	Failed    int
	Duration  time.Duration
}

// RefreshJob walks every portfolio entry across all users.
//
// In resave mode each entry is written back unchanged. In refetch mode every
// distinct symbol is fetched once, the cache entry is replaced, and all entries
// holding that symbol are updated. A failing entry is logged and skipped.
type RefreshJob struct {
	store   EntryStore
	source  FundamentalsSource
	cache   CacheReplacer
	events  EventEmitter
	mode    string
	timeout time.Duration
	log     zerolog.Logger
}

// NewRefreshJob creates a new refresh job. An empty mode means resave.
func NewRefreshJob(store EntryStore, source FundamentalsSource, cache CacheReplacer, emitter EventEmitter, mode string, log zerolog.Logger) *RefreshJob {
	if mode == "" {
		mode = config.RefreshModeResave
	}
	return &RefreshJob{
		store:   store,
		source:  source,
		cache:   cache,
		events:  emitter,
		mode:    mode,
		timeout: 30 * time.Minute,
		log:     log.With().Str("job", "portfolio_refresh").Logger(),
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "portfolio_refresh"
}

// Mode returns the sweep mode (resave or refetch)
func (j *RefreshJob) Mode() string {
	return j.mode
}

// Run executes the job
func (j *RefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	_, err := j.Sweep(ctx)
	return err
}

// Sweep performs one refresh pass and reports how many entries were handled.
// Only a failure to enumerate entries is returned as an error.
func (j *RefreshJob) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	result := SweepResult{Mode: j.mode}

	entries, err := j.store.ListEntries(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to list portfolio entries")
		return result, fmt.Errorf("failed to list portfolio entries: %w", err)
	}

	j.log.Info().Str("mode", j.mode).Int("entries", len(entries)).Msg("Starting portfolio refresh")

	switch j.mode {
	case config.RefreshModeRefetch:
		j.refetch(ctx, entries, &result)
	default:
		j.resave(ctx, entries, &result)
	}

	result.Duration = time.Since(start)
	j.log.Info().
		Str("mode", j.mode).
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Portfolio refresh completed")

	if j.events != nil {
		j.events.EmitTyped("portfolio", &events.RefreshCompletedData{
			Mode:      result.Mode,
			Processed: result.Processed,
			Failed:    result.Failed,
		})
	}
	return result, nil
}

func (j *RefreshJob) resave(ctx context.Context, entries []domain.PortfolioEntry, result *SweepResult) {
	for _, entry := range entries {
		j.save(ctx, entry, result)
	}
}

func (j *RefreshJob) refetch(ctx context.Context, entries []domain.PortfolioEntry, result *SweepResult) {
	bySymbol := make(map[string][]domain.PortfolioEntry)
	var order []string
	for _, entry := range entries {
		name := entry.Stock.Name
		if _, seen := bySymbol[name]; !seen {
			order = append(order, name)
		}
		bySymbol[name] = append(bySymbol[name], entry)
	}

	for _, symbol := range order {
		group := bySymbol[symbol]

		f, err := j.source.Fetch(ctx, symbol)
		if err != nil {
			j.log.Warn().Err(err).Str("symbol", symbol).Int("entries", len(group)).Msg("Failed to refetch fundamentals, skipping symbol")
			result.Failed += len(group)
			continue
		}

		if err := j.cache.Replace(ctx, symbol, f); err != nil {
			j.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to replace cache entry")
		}

		for _, entry := range group {
			entry.Stock.Fundamentals = f
			j.save(ctx, entry, result)
		}
	}
}

func (j *RefreshJob) save(ctx context.Context, entry domain.PortfolioEntry, result *SweepResult) {
	if err := j.store.SaveEntry(ctx, entry); err != nil {
		j.log.Warn().
			Err(err).
			Str("username", entry.Username).
			Str("symbol", entry.Stock.Name).
			Str("id", entry.Stock.ID).
			Msg("Failed to save portfolio entry")
		result.Failed++
		return
	}
	result.Processed++
}
