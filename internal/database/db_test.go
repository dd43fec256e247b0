package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTempDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_CreatesDirectoryAndDefaultsProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "x.db")
	db, err := New(Config{Path: path, Name: "x"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, ProfileStandard, db.Profile())
	assert.Equal(t, "x", db.Name())
	assert.Equal(t, path, db.Path())
	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}

func TestBuildConnectionString(t *testing.T) {
	cache := buildConnectionString("/tmp/c.db", ProfileCache)
	assert.Contains(t, cache, "/tmp/c.db?_pragma=journal_mode(WAL)")
	assert.Contains(t, cache, "synchronous(OFF)")

	std := buildConnectionString("/tmp/s.db", ProfileStandard)
	assert.Contains(t, std, "synchronous(NORMAL)")
	assert.Contains(t, std, "foreign_keys(1)")

	uri := buildConnectionString("file:mem?mode=memory", ProfileStandard)
	assert.Contains(t, uri, "file:mem?mode=memory&_pragma=journal_mode(WAL)")
}

func TestMigrate_PortfolioSchema(t *testing.T) {
	db := newTempDB(t, "portfolio", ProfileStandard)
	require.NoError(t, db.Migrate())
	// Idempotent
	require.NoError(t, db.Migrate())

	for _, table := range []string{"users", "portfolio_stocks"} {
		var name string
		err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestMigrate_ClientDataSchema(t *testing.T) {
	db := newTempDB(t, "client_data", ProfileCache)
	require.NoError(t, db.Migrate())

	var name string
	err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='fundamentals'").Scan(&name)
	require.NoError(t, err)
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db := newTempDB(t, "scratch", ProfileStandard)
	assert.NoError(t, db.Migrate())
}

func TestWithTransaction(t *testing.T) {
	db := newTempDB(t, "tx", ProfileStandard)
	_, err := db.Conn().Exec("CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO t (v) VALUES (1)")
		return err
	})
	require.NoError(t, err)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, _ = tx.Exec("INSERT INTO t (v) VALUES (2)")
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	assert.Error(t, WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		panic("boom")
	}))

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM t").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestHealthAndStats(t *testing.T) {
	db := newTempDB(t, "portfolio", ProfileStandard)
	require.NoError(t, db.Migrate())
	ctx := context.Background()

	assert.NoError(t, db.QuickCheck(ctx))
	assert.NoError(t, db.HealthCheck(ctx))

	stats, err := db.GetStats(ctx)
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.PageSize, int64(0))
}

func TestSnapshotTo(t *testing.T) {
	db := newTempDB(t, "portfolio", ProfileStandard)
	require.NoError(t, db.Migrate())
	_, err := db.Conn().Exec("INSERT INTO users (username, created_at) VALUES ('alice', 1)")
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "snap.db")
	require.NoError(t, db.SnapshotTo(context.Background(), dest))

	snap, err := New(Config{Path: dest, Name: "snap"})
	require.NoError(t, err)
	defer snap.Close()

	var username string
	require.NoError(t, snap.Conn().QueryRow("SELECT username FROM users").Scan(&username))
	assert.Equal(t, "alice", username)
}
