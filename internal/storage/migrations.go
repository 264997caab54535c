package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

// ErrNoMigration indicates no migration has been applied yet.
var ErrNoMigration = errors.New("no migration")

// Placeholder renders the n-th (1-based) bind parameter for a SQL dialect.
type Placeholder func(n int) string

// QuestionPlaceholder is the SQLite style "?".
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder is the PostgreSQL style "$n".
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// MigrationManager applies numbered SQL migrations from a file system,
// usually an embed.FS compiled into the backend package. Files are named
// NNN_name.up.sql / NNN_name.down.sql and the applied version is tracked in
// a schema_migrations table.
type MigrationManager struct {
	db          *sql.DB
	files       fs.FS
	placeholder Placeholder
}

// migration represents a single up/down migration pair.
type migration struct {
	version  uint
	name     string
	upFile   string
	downFile string
}

// NewMigrationManager creates a MigrationManager reading migrations from
// the root of files.
func NewMigrationManager(db *sql.DB, files fs.FS, placeholder Placeholder) (*MigrationManager, error) {
	if db == nil {
		return nil, fmt.Errorf("migrations: database connection is required")
	}
	if files == nil {
		return nil, fmt.Errorf("migrations: migration files are required")
	}
	if placeholder == nil {
		placeholder = QuestionPlaceholder
	}

	mgr := &MigrationManager{db: db, files: files, placeholder: placeholder}
	if err := mgr.ensureSchemaTable(); err != nil {
		return nil, fmt.Errorf("migrations: failed to create schema table: %w", err)
	}
	return mgr, nil
}

func (mgr *MigrationManager) ensureSchemaTable() error {
	_, err := mgr.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// Up applies all pending migrations in ascending version order, each in its
// own transaction. Returns the number of migrations applied.
func (mgr *MigrationManager) Up(ctx context.Context) (int, error) {
	migrations, err := mgr.loadMigrations()
	if err != nil {
		return 0, fmt.Errorf("migrations: failed to load migration files: %w", err)
	}

	current, err := mgr.Version(ctx)
	if err != nil && !errors.Is(err, ErrNoMigration) {
		return 0, fmt.Errorf("migrations: failed to get current version: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := mgr.apply(ctx, m.upFile, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version) VALUES ("+mgr.placeholder(1)+")", m.version)
			return err
		}); err != nil {
			return applied, fmt.Errorf("migrations: failed to apply version %d (%s): %w", m.version, m.name, err)
		}
		applied++
	}
	return applied, nil
}

// Down rolls back all applied migrations in descending version order.
func (mgr *MigrationManager) Down(ctx context.Context) error {
	migrations, err := mgr.loadMigrations()
	if err != nil {
		return fmt.Errorf("migrations: failed to load migration files: %w", err)
	}

	current, err := mgr.Version(ctx)
	if errors.Is(err, ErrNoMigration) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrations: failed to get current version: %w", err)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version > migrations[j].version
	})

	for _, m := range migrations {
		if m.version > current {
			continue
		}
		if m.downFile == "" {
			return fmt.Errorf("migrations: version %d (%s) has no down file", m.version, m.name)
		}
		if err := mgr.apply(ctx, m.downFile, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				"DELETE FROM schema_migrations WHERE version = "+mgr.placeholder(1), m.version)
			return err
		}); err != nil {
			return fmt.Errorf("migrations: failed to roll back version %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

// Version returns the highest applied migration version.
// Returns (0, ErrNoMigration) when no migration has been applied.
func (mgr *MigrationManager) Version(ctx context.Context) (uint, error) {
	var version uint
	err := mgr.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("migrations: failed to query version: %w", err)
	}
	if version == 0 {
		return 0, ErrNoMigration
	}
	return version, nil
}

func (mgr *MigrationManager) apply(ctx context.Context, file string, record func(*sql.Tx) error) error {
	body, err := fs.ReadFile(mgr.files, file)
	if err != nil {
		return err
	}

	tx, err := mgr.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return err
	}
	if err := record(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// loadMigrations parses NNN_name.up.sql / NNN_name.down.sql file names and
// returns migrations sorted by version ascending. Entries without an up file
// are skipped.
func (mgr *MigrationManager) loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(mgr.files, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: failed to read directory: %w", err)
	}

	byVersion := make(map[uint]*migration)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		idx := strings.Index(name, "_")
		if idx < 0 {
			continue
		}
		v, err := strconv.ParseUint(name[:idx], 10, 64)
		if err != nil {
			continue
		}
		version := uint(v)
		rest := name[idx+1:]

		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version}
			byVersion[version] = m
		}
		switch {
		case strings.HasSuffix(rest, ".up.sql"):
			m.name = strings.TrimSuffix(rest, ".up.sql")
			m.upFile = name
		case strings.HasSuffix(rest, ".down.sql"):
			m.downFile = name
		}
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.upFile == "" {
			continue
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}
