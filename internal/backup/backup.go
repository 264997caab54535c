// Package backup takes and restores point-in-time copies of the SQLite feed
// database and prunes old copies by age tier.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

// fileLayout names snapshots so they sort chronologically.
const fileLayout = "20060102T150405.000Z"

const filePrefix = "agentpulse-"

// ErrIntegrity is returned when a snapshot fails PRAGMA integrity_check.
var ErrIntegrity = errors.New("backup: integrity check failed")

// Snapshot describes one backup file on disk.
type Snapshot struct {
	Path    string    `json:"path"`
	TakenAt time.Time `json:"taken_at"`
	Size    int64     `json:"size"`
}

// Result reports the outcome of Create.
type Result struct {
	Snapshot
	Duration time.Duration `json:"duration"`
	Pruned   int           `json:"pruned"`
}

// Manager owns a backup directory for one database file.
type Manager struct {
	dbPath    string
	dir       string
	retention Retention
	logger    *zap.Logger
	now       func() time.Time
}

// NewManager returns a Manager writing snapshots of dbPath into dir.
// The directory is created when missing.
func NewManager(dbPath, dir string, retention Retention, logger *zap.Logger) (*Manager, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("backup: database path is required")
	}
	if dir == "" {
		return nil, fmt.Errorf("backup: directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create directory: %w", err)
	}
	return &Manager{
		dbPath:    dbPath,
		dir:       dir,
		retention: retention.withDefaults(),
		logger:    logger.Named("backup"),
		now:       time.Now,
	}, nil
}

// Create snapshots the database with VACUUM INTO, verifies the copy and
// applies the retention policy. A snapshot that fails verification is removed.
func (m *Manager) Create(ctx context.Context) (*Result, error) {
	start := m.now()
	at := start.UTC()
	dest := filepath.Join(m.dir, filePrefix+at.Format(fileLayout)+".db")

	if err := vacuumInto(ctx, m.dbPath, dest); err != nil {
		return nil, err
	}
	if err := Verify(ctx, dest); err != nil {
		_ = os.Remove(dest)
		return nil, err
	}
	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("backup: stat snapshot: %w", err)
	}

	pruned, err := m.Prune()
	if err != nil {
		m.logger.Warn("retention failed", zap.Error(err))
	}

	res := &Result{
		Snapshot: Snapshot{Path: dest, TakenAt: at, Size: info.Size()},
		Duration: m.now().Sub(start),
		Pruned:   pruned,
	}
	m.logger.Info("snapshot created",
		zap.String("path", dest),
		zap.Int64("bytes", res.Size),
		zap.Duration("duration", res.Duration),
		zap.Int("pruned", pruned))
	return res, nil
}

// List returns the snapshots in the directory, newest first.
func (m *Manager) List() ([]Snapshot, error) {
	return listSnapshots(m.dir)
}

// Restore overwrites the database file with a verified snapshot. The
// database must not be open elsewhere.
func (m *Manager) Restore(ctx context.Context, snapshotPath string) error {
	if err := Verify(ctx, snapshotPath); err != nil {
		return err
	}
	if err := copyFile(snapshotPath, m.dbPath); err != nil {
		return err
	}
	// Stale WAL files would be replayed over the restored copy.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(m.dbPath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("backup: remove %s: %w", suffix, err)
		}
	}
	if err := Verify(ctx, m.dbPath); err != nil {
		return fmt.Errorf("backup: restored database: %w", err)
	}
	m.logger.Info("database restored", zap.String("from", snapshotPath), zap.String("to", m.dbPath))
	return nil
}

// Verify runs PRAGMA integrity_check against a database file.
func Verify(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return fmt.Errorf("backup: open %s: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("backup: integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: %s", ErrIntegrity, result)
	}
	return nil
}

func vacuumInto(ctx context.Context, src, dest string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("backup: source database: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+src)
	if err != nil {
		return fmt.Errorf("backup: open source: %w", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, "VACUUM INTO '"+strings.ReplaceAll(dest, "'", "''")+"'"); err != nil {
		return fmt.Errorf("backup: vacuum into %s: %w", dest, err)
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("backup: open snapshot: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("backup: create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("backup: copy snapshot: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("backup: sync %s: %w", dest, err)
	}
	return out.Close()
}
