package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/professor-crawler/internal/professor"
	"github.com/JakeFAU/professor-crawler/internal/runs"
)

// RunStore implements runs.Store on the runs table.
type RunStore struct {
	store *Store
}

var _ runs.Store = (*RunStore)(nil)

// Runs returns a run store sharing s's pool.
func (s *Store) Runs() *RunStore {
	return &RunStore{store: s}
}

// CreateRun inserts a new run.
func (r *RunStore) CreateRun(ctx context.Context, run runs.Run) error {
	request, stats, profs, interests, err := encodeRun(run)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO runs (
			id, university, request, status, submitted_at, started_at, finished_at,
			error_text, stats, professors, interests, snapshot_uri
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING;
	`
	tag, err := r.store.pool.Exec(ctx, query,
		run.ID,
		run.Request.University,
		request,
		string(run.Status),
		run.Submitted,
		run.Started,
		run.Finished,
		run.ErrorText,
		stats,
		profs,
		interests,
		run.SnapshotURI,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return runs.ErrExists
	}
	return nil
}

// UpdateRun overwrites the mutable columns of an existing run.
func (r *RunStore) UpdateRun(ctx context.Context, run runs.Run) error {
	_, stats, profs, interests, err := encodeRun(run)
	if err != nil {
		return err
	}
	query := `
		UPDATE runs
		SET status = $1, started_at = $2, finished_at = $3, error_text = $4,
			stats = $5, professors = $6, interests = $7, snapshot_uri = $8
		WHERE id = $9;
	`
	tag, err := r.store.pool.Exec(ctx, query,
		string(run.Status),
		run.Started,
		run.Finished,
		run.ErrorText,
		stats,
		profs,
		interests,
		run.SnapshotURI,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return runs.ErrNotFound
	}
	return nil
}

const runColumns = `id, request, status, submitted_at, started_at, finished_at,
	error_text, stats, professors, interests, snapshot_uri`

// GetRun retrieves a single run by its ID.
func (r *RunStore) GetRun(ctx context.Context, id string) (runs.Run, error) {
	row := r.store.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1;`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return runs.Run{}, runs.ErrNotFound
		}
		return runs.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recently submitted runs.
func (r *RunStore) ListRuns(ctx context.Context, limit int) ([]runs.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.store.pool.Query(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY submitted_at DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []runs.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func encodeRun(run runs.Run) (request, stats, profs, interests []byte, err error) {
	if request, err = json.Marshal(run.Request); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal run request: %w", err)
	}
	if stats, err = json.Marshal(run.Stats); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal run stats: %w", err)
	}
	if profs, err = marshalReport(run.Professors); err != nil {
		return nil, nil, nil, nil, err
	}
	if interests, err = marshalReport(run.Interests); err != nil {
		return nil, nil, nil, nil, err
	}
	return request, stats, profs, interests, nil
}

func marshalReport(r *professor.BatchReport) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal batch report: %w", err)
	}
	return b, nil
}

func scanRun(row pgx.Row) (runs.Run, error) {
	var (
		run                              runs.Run
		status                           string
		request, stats, profs, interests []byte
	)
	if err := row.Scan(
		&run.ID,
		&request,
		&status,
		&run.Submitted,
		&run.Started,
		&run.Finished,
		&run.ErrorText,
		&stats,
		&profs,
		&interests,
		&run.SnapshotURI,
	); err != nil {
		return runs.Run{}, err
	}
	run.Status = runs.Status(status)
	if err := json.Unmarshal(request, &run.Request); err != nil {
		return runs.Run{}, fmt.Errorf("decode run request: %w", err)
	}
	if err := json.Unmarshal(stats, &run.Stats); err != nil {
		return runs.Run{}, fmt.Errorf("decode run stats: %w", err)
	}
	var err error
	if run.Professors, err = unmarshalReport(profs); err != nil {
		return runs.Run{}, err
	}
	if run.Interests, err = unmarshalReport(interests); err != nil {
		return runs.Run{}, err
	}
	return run, nil
}

func unmarshalReport(b []byte) (*professor.BatchReport, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var r professor.BatchReport
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode batch report: %w", err)
	}
	return &r, nil
}
