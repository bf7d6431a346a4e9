package shared

import (
	"cmp"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// ErrNoMigrations is returned by [RollbackMigration] on a database with nothing applied.
var ErrNoMigrations = errors.New("no migrations to roll back")

// "0001_create_runs_up.sql" -> 0001, create_runs, up
var migrationName = regexp.MustCompile(`^(\d+)_(.+)_(up|down)\.sql$`)

// Migration is one versioned schema change with its inverse.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// MigrationState describes a known migration on a particular database.
type MigrationState struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// loadMigrations pairs the embedded up and down scripts, ordered by version.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationFiles.ReadDir("sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	byVersion := map[int]*Migration{}
	for _, entry := range entries {
		m := migrationName.FindStringSubmatch(entry.Name())
		if entry.IsDir() || m == nil {
			continue
		}
		version, _ := strconv.Atoi(m[1])

		content, err := migrationFiles.ReadFile(path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		mig, ok := byVersion[version]
		if !ok {
			mig = &Migration{Version: version, Name: m[2]}
			byVersion[version] = mig
		}
		if mig.Name != m[2] {
			return nil, fmt.Errorf("migration %04d has mismatched names %q and %q", version, mig.Name, m[2])
		}
		if m[3] == "up" {
			mig.Up = string(content)
		} else {
			mig.Down = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.Up == "" || mig.Down == "" {
			return nil, fmt.Errorf("incomplete migration for version %d", mig.Version)
		}
		migrations = append(migrations, *mig)
	}
	slices.SortFunc(migrations, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return migrations, nil
}

// RunMigrations applies every pending migration in version order, each in its own transaction.
// Applied versions are tracked in schema_migrations.
func RunMigrations(db *sql.DB) error {
	migrations, applied, err := prepare(db)
	if err != nil {
		return err
	}

	for _, mig := range migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if err := inTx(db, mig.Up, "INSERT INTO schema_migrations (version) VALUES (?)", mig.Version); err != nil {
			return fmt.Errorf("failed to apply migration %04d_%s: %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

// RollbackMigration reverts the most recently applied migration and returns it.
func RollbackMigration(db *sql.DB) (Migration, error) {
	migrations, applied, err := prepare(db)
	if err != nil {
		return Migration{}, err
	}

	for _, mig := range slices.Backward(migrations) {
		if _, ok := applied[mig.Version]; !ok {
			continue
		}
		if err := inTx(db, mig.Down, "DELETE FROM schema_migrations WHERE version = ?", mig.Version); err != nil {
			return Migration{}, fmt.Errorf("failed to roll back migration %04d_%s: %w", mig.Version, mig.Name, err)
		}
		return mig, nil
	}
	return Migration{}, ErrNoMigrations
}

// MigrationStatus lists every known migration and whether it has been applied.
func MigrationStatus(db *sql.DB) ([]MigrationState, error) {
	migrations, applied, err := prepare(db)
	if err != nil {
		return nil, err
	}

	states := make([]MigrationState, len(migrations))
	for i, mig := range migrations {
		at, ok := applied[mig.Version]
		states[i] = MigrationState{Version: mig.Version, Name: mig.Name, Applied: ok, AppliedAt: at}
	}
	return states, nil
}

// prepare loads the embedded migrations, ensures the bookkeeping table exists, and reads what has been applied.
func prepare(db *sql.DB) ([]Migration, map[int]time.Time, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	const ddl = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`
	if _, err := db.Exec(ddl); err != nil {
		return nil, nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.Query("SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := map[int]time.Time{}
	for rows.Next() {
		var (
			version int
			at      sql.NullTime
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, nil, err
		}
		applied[version] = at.Time
	}
	return migrations, applied, rows.Err()
}

// inTx runs each statement of script and then the bookkeeping query in one transaction.
func inTx(db *sql.DB, script, bookkeeping string, version int) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(removeComments(stmt))
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute statement: %w\nStatement: %s", err, stmt)
		}
	}

	if _, err := tx.Exec(bookkeeping, version); err != nil {
		return err
	}
	return tx.Commit()
}

// removeComments strips "--" line comments.
func removeComments(sql string) string {
	var result []string
	for line := range strings.SplitSeq(sql, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		if line = strings.TrimSpace(line); line != "" {
			result = append(result, line)
		}
	}
	return strings.Join(result, "\n")
}
