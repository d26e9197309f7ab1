package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lightning_backend/predictor"
)

// ErrNotFound is returned when a prediction ID has no record.
var ErrNotFound = errors.New("history: prediction not found")

// Store persists prediction records in SQLite. It satisfies
// predictor.Recorder.
type Store struct {
	db *sql.DB
}

// Open runs migrations against the database at dbPath and returns a ready
// Store. migrationsPath uses golang-migrate's file:// form, e.g.
// "file://history/migrations".
func Open(dbPath, migrationsPath string) (*Store, error) {
	migrationDB, err := openConnection(DefaultConnectionConfig(dbPath))
	if err != nil {
		return nil, err
	}

	// migrateUp closes migrationDB; the store gets a fresh connection.
	if err := migrateUp(migrationDB, migrationsPath); err != nil {
		return nil, err
	}

	db, err := openConnection(DefaultConnectionConfig(dbPath))
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Record inserts one prediction record.
func (s *Store) Record(ctx context.Context, rec predictor.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO predictions (
			id, prompt, scheduler, seed, width, height, num_outputs,
			steps, guidance, output_count, filtered_count, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Prompt, rec.Scheduler, rec.Seed, rec.Width, rec.Height,
		rec.NumOutputs, rec.Steps, rec.Guidance, rec.OutputCount,
		rec.FilteredCount, rec.DurationMS, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("history: failed to insert record: %w", err)
	}
	return nil
}

const recordColumns = `id, prompt, scheduler, seed, width, height, num_outputs,
	steps, guidance, output_count, filtered_count, duration_ms, created_at`

// Get returns the record for a prediction ID.
func (s *Store) Get(ctx context.Context, id string) (*predictor.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM predictions WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("history: failed to read record: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]predictor.Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM predictions ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: failed to query records: %w", err)
	}
	defer rows.Close()

	var records []predictor.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("history: failed to scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: row iteration failed: %w", err)
	}
	return records, nil
}

// Count returns the total number of recorded predictions.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("history: failed to count records: %w", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*predictor.Record, error) {
	var rec predictor.Record
	err := row.Scan(
		&rec.ID, &rec.Prompt, &rec.Scheduler, &rec.Seed, &rec.Width,
		&rec.Height, &rec.NumOutputs, &rec.Steps, &rec.Guidance,
		&rec.OutputCount, &rec.FilteredCount, &rec.DurationMS, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
