package db

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	embeddedmigrations "github.com/bigcats-cc/email-sieve/migrations"
)

// MigrationStatus is one journal schema migration as seen by `migrate status`.
type MigrationStatus struct {
	ID        string
	Checksum  string
	Applied   bool
	AppliedAt *time.Time
	Duration  time.Duration
}

// schemaFile is an embedded migration.
type schemaFile struct {
	id       string
	checksum string
	body     string
}

// appliedRow is one row of schema_migrations.
type appliedRow struct {
	ID         string    `db:"version"`
	Checksum   string    `db:"checksum"`
	AppliedAt  Timestamp `db:"applied_at"`
	DurationMs int64     `db:"duration_ms"`
}

// migrator applies the embedded schema for one driver.
type migrator struct {
	db    *sqlx.DB
	files fs.FS
	dir   string
	// column type for applied_at
	timeType string
}

func newMigrator(db *sqlx.DB) (*migrator, error) {
	switch db.DriverName() {
	case "sqlite3":
		return &migrator{db: db, files: embeddedmigrations.SqliteMigrations, dir: "sqlite", timeType: "TEXT"}, nil
	case "postgres":
		return &migrator{db: db, files: embeddedmigrations.PostgresMigrations, dir: "postgres", timeType: "TIMESTAMPTZ"}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", db.DriverName())
	}
}

// MigrateUp applies every pending migration, oldest first, one transaction
// each. It refuses to run when an applied migration no longer matches its
// embedded file.
func MigrateUp(db *sqlx.DB) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	files, applied, err := m.load()
	if err != nil {
		return err
	}
	if err := verify(files, applied); err != nil {
		return fmt.Errorf("journal schema does not match this binary: %w", err)
	}

	for _, f := range files {
		if _, done := applied[f.id]; done {
			continue
		}
		if err := m.apply(f); err != nil {
			return fmt.Errorf("migration %s: %w", f.id, err)
		}
	}
	return nil
}

// MigrateStatus lists every embedded migration with its applied state.
func MigrateStatus(db *sqlx.DB) ([]MigrationStatus, error) {
	m, err := newMigrator(db)
	if err != nil {
		return nil, err
	}
	files, applied, err := m.load()
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(files))
	for _, f := range files {
		row, ok := applied[f.id]
		if !ok {
			out = append(out, MigrationStatus{ID: f.id, Checksum: f.checksum})
			continue
		}
		at := row.AppliedAt.Time
		out = append(out, MigrationStatus{
			ID:        row.ID,
			Checksum:  row.Checksum,
			Applied:   true,
			AppliedAt: &at,
			Duration:  time.Duration(row.DurationMs) * time.Millisecond,
		})
	}
	return out, nil
}

// load reads the embedded files and the applied rows, creating the tracking
// table on first use.
func (m *migrator) load() ([]schemaFile, map[string]appliedRow, error) {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at %s NOT NULL,
		duration_ms INTEGER NOT NULL
	)`, m.timeType)
	if _, err := m.db.Exec(ddl); err != nil {
		return nil, nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	files, err := readSchemaFiles(m.files, m.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	var rows []appliedRow
	if err := m.db.Select(&rows, "SELECT version, checksum, applied_at, duration_ms FROM schema_migrations"); err != nil {
		return nil, nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	applied := make(map[string]appliedRow, len(rows))
	for _, r := range rows {
		applied[r.ID] = r
	}
	return files, applied, nil
}

func (m *migrator) apply(f schemaFile) error {
	start := time.Now()
	tx, err := m.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(f.body) {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("%q: %w", firstLine(stmt), err)
		}
	}
	insert := tx.Rebind("INSERT INTO schema_migrations (version, checksum, applied_at, duration_ms) VALUES (?, ?, ?, ?)")
	if _, err := tx.Exec(insert, f.id, f.checksum, Timestamp{time.Now()}, time.Since(start).Milliseconds()); err != nil {
		return err
	}
	return tx.Commit()
}

// verify checks applied rows against the embedded files.
func verify(files []schemaFile, applied map[string]appliedRow) error {
	embedded := make(map[string]string, len(files))
	for _, f := range files {
		embedded[f.id] = f.checksum
	}
	ids := make([]string, 0, len(applied))
	for id := range applied {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		want, ok := embedded[id]
		switch {
		case !ok:
			return fmt.Errorf("applied migration %s is unknown", id)
		case applied[id].Checksum != want:
			return fmt.Errorf("checksum mismatch for %s", id)
		}
	}
	return nil
}

// readSchemaFiles returns the .sql files of dir in name order, which is
// the order fs.ReadDir reports them in.
func readSchemaFiles(fsys fs.FS, dir string) ([]schemaFile, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var files []schemaFile
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256(body)
		files = append(files, schemaFile{id: e.Name(), checksum: hex.EncodeToString(sum[:]), body: string(body)})
	}
	return files, nil
}

// splitStatements drops "--" comment lines and splits on ';'.
// lib/pq rejects several statements in one Exec.
func splitStatements(sql string) []string {
	var kept []string
	for _, line := range strings.Split(sql, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			kept = append(kept, line)
		}
	}
	var out []string
	for _, stmt := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
