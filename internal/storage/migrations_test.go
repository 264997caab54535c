package storage_test

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"001_widgets.up.sql":   {Data: []byte("CREATE TABLE widgets (id TEXT PRIMARY KEY);")},
		"001_widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
		"002_gadgets.up.sql":   {Data: []byte("CREATE TABLE gadgets (id TEXT PRIMARY KEY);")},
		"002_gadgets.down.sql": {Data: []byte("DROP TABLE gadgets;")},
		"README.md":            {Data: []byte("not a migration")},
		"xyz_bad.up.sql":       {Data: []byte("SELECT 1;")},
	}
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestMigrationManager_UpAppliesInOrder(t *testing.T) {
	ctx := context.Background()
	db := openMemoryDB(t)

	mgr, err := storage.NewMigrationManager(db, testMigrations(), storage.QuestionPlaceholder)
	require.NoError(t, err)

	_, err = mgr.Version(ctx)
	assert.ErrorIs(t, err, storage.ErrNoMigration)

	applied, err := mgr.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.True(t, tableExists(t, db, "widgets"))
	assert.True(t, tableExists(t, db, "gadgets"))

	v, err := mgr.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)

	// Re-running is a no-op.
	applied, err = mgr.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
}

func TestMigrationManager_Down(t *testing.T) {
	ctx := context.Background()
	db := openMemoryDB(t)

	mgr, err := storage.NewMigrationManager(db, testMigrations(), nil)
	require.NoError(t, err)
	_, err = mgr.Up(ctx)
	require.NoError(t, err)

	require.NoError(t, mgr.Down(ctx))
	assert.False(t, tableExists(t, db, "widgets"))
	assert.False(t, tableExists(t, db, "gadgets"))

	_, err = mgr.Version(ctx)
	assert.ErrorIs(t, err, storage.ErrNoMigration)
}

func TestMigrationManager_FailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openMemoryDB(t)

	files := fstest.MapFS{
		"001_ok.up.sql":     {Data: []byte("CREATE TABLE ok (id TEXT);")},
		"002_broken.up.sql": {Data: []byte("CREATE TABLE nope (;")},
	}
	mgr, err := storage.NewMigrationManager(db, files, storage.QuestionPlaceholder)
	require.NoError(t, err)

	applied, err := mgr.Up(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, applied)

	v, err := mgr.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestNewMigrationManager_RequiresDB(t *testing.T) {
	_, err := storage.NewMigrationManager(nil, testMigrations(), nil)
	assert.Error(t, err)
}

func TestDollarPlaceholder(t *testing.T) {
	assert.Equal(t, "$3", storage.DollarPlaceholder(3))
	assert.Equal(t, "?", storage.QuestionPlaceholder(3))
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, storage.DefaultListLimit, storage.NormalizeLimit(0))
	assert.Equal(t, storage.MaxListLimit, storage.NormalizeLimit(10000))
	assert.Equal(t, 7, storage.NormalizeLimit(7))
}
