package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/shared"
)

// ErrRunNotFound is returned when a run id is not in the history.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, sequence, status, stage, dry_run, library_size, error_kind, error, started_at, finished_at`

// RunRepository persists run records and their per-playlist outcomes.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Record inserts rec and its playlist outcomes in one transaction and assigns its sequence.
func (r *RunRepository) Record(ctx context.Context, rec *models.RunRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil run record", shared.ErrInvalidInput)
	}
	if rec.ID == "" {
		rec.ID = shared.GenerateID()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := NextSequence(ctx, tx, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		rec.ID,
		sequence,
		string(rec.Status),
		string(rec.Stage),
		rec.DryRun,
		rec.LibrarySize,
		rec.ErrorKind,
		rec.Error,
		rec.StartedAt.UTC(),
		rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_playlists (
			run_id, position, name, playlist_id, status, desired, previous,
			changed, removed, added, calls, error_kind, error
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare playlist insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range rec.Playlists {
		_, err := stmt.ExecContext(ctx,
			rec.ID, p.Index, p.Name, p.PlaylistID, string(p.Status), p.Desired, p.Previous,
			p.Changed, p.Removed, p.Added, p.Calls, p.ErrorKind, p.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to insert playlist outcome %q: %w", p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	rec.Sequence = sequence
	return nil
}

// Get retrieves a run and its playlist outcomes by ID.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	rec, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadOutcomes(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Latest retrieves the most recent run.
func (r *RunRepository) Latest(ctx context.Context) (*models.RunRecord, error) {
	runs, err := r.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return runs[0], nil
}

// List retrieves up to limit runs, newest first. A limit of zero or less returns every run.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY sequence DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for _, rec := range runs {
		if err := r.loadOutcomes(ctx, rec); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Prune deletes all but the newest keep runs and returns how many were removed.
func (r *RunRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("%w: keep must not be negative", shared.ErrInvalidArgument)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stale := `SELECT id FROM runs ORDER BY sequence DESC LIMIT -1 OFFSET ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_playlists WHERE run_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("failed to delete playlist outcomes: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return n, nil
}

func (r *RunRepository) loadOutcomes(ctx context.Context, rec *models.RunRecord) error {
	query := `
		SELECT position, name, playlist_id, status, desired, previous, changed, removed, added, calls, error_kind, error
		FROM run_playlists
		WHERE run_id = ?
		ORDER BY position ASC
	`
	rows, err := r.db.QueryContext(ctx, query, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to query playlist outcomes: %w", err)
	}
	defer rows.Close()

	rec.Playlists = []models.PlaylistOutcome{}
	for rows.Next() {
		var (
			p      models.PlaylistOutcome
			status string
		)
		err := rows.Scan(&p.Index, &p.Name, &p.PlaylistID, &status, &p.Desired, &p.Previous,
			&p.Changed, &p.Removed, &p.Added, &p.Calls, &p.ErrorKind, &p.Error)
		if err != nil {
			return fmt.Errorf("failed to scan playlist outcome: %w", err)
		}
		p.Status = models.RunStatus(status)
		rec.Playlists = append(rec.Playlists, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row into a [models.RunRecord]
func scanRun(row scanner) (*models.RunRecord, error) {
	var (
		rec        models.RunRecord
		status     string
		stage      string
		startedAt  time.Time
		finishedAt time.Time
	)

	err := row.Scan(&rec.ID, &rec.Sequence, &status, &stage, &rec.DryRun, &rec.LibrarySize,
		&rec.ErrorKind, &rec.Error, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	rec.Status = models.RunStatus(status)
	rec.Stage = models.Stage(stage)
	rec.StartedAt = startedAt
	rec.FinishedAt = finishedAt
	return &rec, nil
}
