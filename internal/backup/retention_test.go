package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSnapshot(t *testing.T, dir string, at time.Time) string {
	t.Helper()
	path := filepath.Join(dir, filePrefix+at.UTC().Format(fileLayout)+".db")
	require.NoError(t, os.WriteFile(path, []byte("sqlite"), 0o644))
	return path
}

func TestListSnapshots(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	older := writeSnapshot(t, dir, now.Add(-2*time.Hour))
	newer := writeSnapshot(t, dir, now.Add(-time.Hour))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.db"), 0o755))

	snaps, err := listSnapshots(dir)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, newer, snaps[0].Path)
	assert.Equal(t, older, snaps[1].Path)
	assert.True(t, snaps[0].TakenAt.Equal(now.Add(-time.Hour)))

	_, err = listSnapshots(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestListSnapshots_ForeignNameUsesModTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manual.db")
	require.NoError(t, os.WriteFile(path, []byte("sqlite"), 0o644))
	mod := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mod, mod))

	snaps, err := listSnapshots(dir)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].TakenAt.Equal(mod))
}

func TestRetention_Expired(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ages := []time.Duration{
		1 * time.Hour, 2 * time.Hour, 3 * time.Hour, // hourly
		2 * 24 * time.Hour, 3 * 24 * time.Hour, // daily
		10 * 24 * time.Hour, // weekly
		400 * 24 * time.Hour, // beyond a year
	}
	var snaps []Snapshot
	for _, a := range ages {
		snaps = append(snaps, Snapshot{Path: a.String(), TakenAt: now.Add(-a)})
	}

	r := Retention{Hourly: 2, Daily: 1, Weekly: 4, Monthly: 12}
	var gone []string
	for _, s := range r.expired(snaps, now) {
		gone = append(gone, s.Path)
	}
	assert.Equal(t, []string{
		(3 * time.Hour).String(),
		(3 * 24 * time.Hour).String(),
		(400 * 24 * time.Hour).String(),
	}, gone)
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m, err := NewManager("db", dir, Retention{Hourly: 1}, nil)
	require.NoError(t, err)
	m.now = func() time.Time { return now }

	keep := writeSnapshot(t, dir, now.Add(-time.Minute))
	drop := writeSnapshot(t, dir, now.Add(-time.Hour))
	ancient := writeSnapshot(t, dir, now.Add(-2*365*24*time.Hour))

	removed, err := m.Prune()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.FileExists(t, keep)
	assert.NoFileExists(t, drop)
	assert.NoFileExists(t, ancient)
}
