package clientdata

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/stocktracker/internal/domain"
)

const testSchema = `
CREATE TABLE fundamentals (symbol TEXT PRIMARY KEY, data BLOB NOT NULL, stored_at INTEGER NOT NULL);
`

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database
	db.SetMaxOpenConns(1)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return db
}

var aapl = domain.Fundamentals{
	Name:          "AAPL",
	PERatio:       "30",
	PEGRatio:      "2",
	PBRatio:       "15",
	EVEBITDARatio: "20",
}

func TestExists(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	cache := NewFundamentalsCache(db)
	ctx := context.Background()

	exists, err := cache.Exists(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = cache.Put(ctx, "AAPL", aapl)
	require.NoError(t, err)

	exists, err = cache.Exists(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPutAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	cache := NewFundamentalsCache(db)
	ctx := context.Background()

	stored, err := cache.Put(ctx, "AAPL", aapl)
	require.NoError(t, err)
	assert.True(t, stored)

	got, err := cache.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, aapl, got)
}

func TestPut_StoresFlatFieldMap(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	cache := NewFundamentalsCache(db)

	_, err := cache.Put(context.Background(), "AAPL", aapl)
	require.NoError(t, err)

	var blob []byte
	require.NoError(t, db.QueryRow("SELECT data FROM fundamentals WHERE symbol = 'AAPL'").Scan(&blob))

	var fields map[string]string
	require.NoError(t, msgpack.Unmarshal(blob, &fields))
	assert.Equal(t, map[string]string{
		"name":            "AAPL",
		"PE_RATIO":        "30",
		"PEG_RATIO":       "2",
		"PB_RATIO":        "15",
		"EV_EBITDA_RATIO": "20",
	}, fields)
}

func TestPut_FirstWriteWins(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	cache := NewFundamentalsCache(db)
	ctx := context.Background()

	_, err := cache.Put(ctx, "AAPL", aapl)
	require.NoError(t, err)

	later := aapl
	later.PERatio = "99"
	stored, err := cache.Put(ctx, "AAPL", later)
	require.NoError(t, err)
	assert.False(t, stored)

	got, err := cache.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "30", got.PERatio)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM fundamentals").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestPut_ConcurrentWritersLeaveOneEntry(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	cache := NewFundamentalsCache(db)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	storedCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stored, err := cache.Put(ctx, "AAPL", aapl)
			assert.NoError(t, err)
			if stored {
				mu.Lock()
				storedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, storedCount)
	n, err := cache.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGet_Miss(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	cache := NewFundamentalsCache(db)

	_, err := cache.Get(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestGet_CorruptBlob(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	cache := NewFundamentalsCache(db)

	_, err := db.Exec("INSERT INTO fundamentals (symbol, data, stored_at) VALUES ('BAD', x'c1', 0)")
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), "BAD")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestReplace(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	cache := NewFundamentalsCache(db)
	ctx := context.Background()

	_, err := cache.Put(ctx, "AAPL", aapl)
	require.NoError(t, err)

	fresh := aapl
	fresh.PERatio = "31.2"
	require.NoError(t, cache.Replace(ctx, "AAPL", fresh))

	got, err := cache.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "31.2", got.PERatio)
}

func TestDeleteAndCount(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	cache := NewFundamentalsCache(db)
	ctx := context.Background()

	_, err := cache.Put(ctx, "AAPL", aapl)
	require.NoError(t, err)
	_, err = cache.Put(ctx, "MSFT", domain.Fundamentals{Name: "MSFT"})
	require.NoError(t, err)

	n, err := cache.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, cache.Delete(ctx, "AAPL"))
	require.NoError(t, cache.Delete(ctx, "AAPL"))

	n, err = cache.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClosedDatabaseSurfacesErrors(t *testing.T) {
	db := setupTestDB(t)
	cache := NewFundamentalsCache(db)
	require.NoError(t, db.Close())
	ctx := context.Background()

	_, err := cache.Exists(ctx, "AAPL")
	assert.Error(t, err)
	_, err = cache.Put(ctx, "AAPL", aapl)
	assert.Error(t, err)
	_, err = cache.Get(ctx, "AAPL")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}
