// Package clientdata provides persistent caching for external API client responses.
// Entries are stored as msgpack blobs keyed by symbol and never expire.
package clientdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/stocktracker/internal/domain"
)

// ErrCacheMiss is returned by Get when no entry exists for the symbol.
var ErrCacheMiss = errors.New("fundamentals cache miss")

// FundamentalsCache is the symbol-keyed store of last-known fundamentals.
// It is independent of the portfolio database; callers treat it as best-effort.
type FundamentalsCache struct {
	db *sql.DB
}

// NewFundamentalsCache creates a new fundamentals cache over client_data.db.
func NewFundamentalsCache(db *sql.DB) *FundamentalsCache {
	return &FundamentalsCache{db: db}
}

// Exists reports whether an entry is cached for symbol.
func (c *FundamentalsCache) Exists(ctx context.Context, symbol string) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, "SELECT 1 FROM fundamentals WHERE symbol = ?", symbol).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check fundamentals cache for %s: %w", symbol, err)
	}
	return true, nil
}

// Get returns the cached field map for symbol, or ErrCacheMiss.
func (c *FundamentalsCache) Get(ctx context.Context, symbol string) (domain.Fundamentals, error) {
	var blob []byte
	err := c.db.QueryRowContext(ctx, "SELECT data FROM fundamentals WHERE symbol = ?", symbol).Scan(&blob)
	if err == sql.ErrNoRows {
		return domain.Fundamentals{}, ErrCacheMiss
	}
	if err != nil {
		return domain.Fundamentals{}, fmt.Errorf("failed to get fundamentals for %s: %w", symbol, err)
	}

	fields, err := decodeFields(blob)
	if err != nil {
		return domain.Fundamentals{}, fmt.Errorf("failed to decode fundamentals for %s: %w", symbol, err)
	}

	return domain.FundamentalsFromFields(fields), nil
}

// Put stores the entry for symbol in a single statement. The first write wins:
// if an entry already exists it is left untouched and stored is false.
func (c *FundamentalsCache) Put(ctx context.Context, symbol string, f domain.Fundamentals) (stored bool, err error) {
	blob, err := encodeFields(f.Fields())
	if err != nil {
		return false, fmt.Errorf("failed to encode fundamentals for %s: %w", symbol, err)
	}

	result, err := c.db.ExecContext(ctx,
		`INSERT INTO fundamentals (symbol, data, stored_at) VALUES (?, ?, ?)
		 ON CONFLICT(symbol) DO NOTHING`,
		symbol, blob, time.Now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to store fundamentals for %s: %w", symbol, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for %s: %w", symbol, err)
	}
	return n > 0, nil
}

// Replace overwrites the entry for symbol. Only the refetch sweep uses it.
func (c *FundamentalsCache) Replace(ctx context.Context, symbol string, f domain.Fundamentals) error {
	blob, err := encodeFields(f.Fields())
	if err != nil {
		return fmt.Errorf("failed to encode fundamentals for %s: %w", symbol, err)
	}

	_, err = c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO fundamentals (symbol, data, stored_at) VALUES (?, ?, ?)",
		symbol, blob, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to replace fundamentals for %s: %w", symbol, err)
	}
	return nil
}

// Delete removes a specific entry.
func (c *FundamentalsCache) Delete(ctx context.Context, symbol string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM fundamentals WHERE symbol = ?", symbol); err != nil {
		return fmt.Errorf("failed to delete fundamentals for %s: %w", symbol, err)
	}
	return nil
}

// Count returns the number of cached symbols.
func (c *FundamentalsCache) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fundamentals").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count fundamentals: %w", err)
	}
	return n, nil
}

func encodeFields(fields map[string]string) ([]byte, error) {
	return msgpack.Marshal(fields)
}

func decodeFields(blob []byte) (map[string]string, error) {
	var fields map[string]string
	if err := msgpack.Unmarshal(blob, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
