// Package history keeps the training run history in a local SQLite file.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultKeep is the number of training records retained.
const DefaultKeep = 10

// Store is a capped, append-only log of training runs.
type Store struct {
	db   *sql.DB
	keep int
}

// Open opens or creates the history database at path. ":memory:" is accepted
// for tests. keep <= 0 falls back to DefaultKeep.
func Open(path string, keep int) (*Store, error) {
	if keep <= 0 {
		keep = DefaultKeep
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS training_runs (
			run_id       TEXT PRIMARY KEY,
			trained_at   INTEGER NOT NULL,
			duration_ns  INTEGER NOT NULL,
			n_samples    INTEGER NOT NULL,
			n_features   INTEGER NOT NULL,
			anomaly_rate REAL NOT NULL,
			metrics      TEXT NOT NULL,
			validation   TEXT
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create training_runs: %w", err)
	}
	return &Store{db: db, keep: keep}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Append records a run and drops all but the newest keep records.
func (s *Store) Append(ctx context.Context, r model.TrainingRecord) error {
	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	var validation sql.NullString
	if r.Validation != nil {
		b, err := json.Marshal(r.Validation)
		if err != nil {
			return fmt.Errorf("encode validation: %w", err)
		}
		validation = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO training_runs
			(run_id, trained_at, duration_ns, n_samples, n_features, anomaly_rate, metrics, validation)
		VALUES (?,?,?,?,?,?,?,?)`,
		r.RunID, r.Timestamp.UnixNano(), int64(r.Duration), r.NSamples, r.NFeatures,
		r.Metrics.AnomalyRate, string(metrics), validation,
	); err != nil {
		return fmt.Errorf("insert training run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM training_runs WHERE run_id NOT IN (
			SELECT run_id FROM training_runs ORDER BY trained_at DESC LIMIT ?
		)`, s.keep); err != nil {
		return fmt.Errorf("prune training runs: %w", err)
	}
	return tx.Commit()
}

// Recent returns up to n records, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]model.TrainingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, trained_at, duration_ns, n_samples, n_features, metrics, validation
		FROM training_runs ORDER BY trained_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query training runs: %w", err)
	}
	defer rows.Close()

	var out []model.TrainingRecord
	for rows.Next() {
		var (
			r          model.TrainingRecord
			trainedAt  int64
			duration   int64
			metrics    string
			validation sql.NullString
		)
		if err := rows.Scan(&r.RunID, &trainedAt, &duration, &r.NSamples, &r.NFeatures, &metrics, &validation); err != nil {
			return nil, fmt.Errorf("scan training run: %w", err)
		}
		r.Timestamp = time.Unix(0, trainedAt).UTC()
		r.Duration = time.Duration(duration)
		if err := json.Unmarshal([]byte(metrics), &r.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics of %s: %w", r.RunID, err)
		}
		if validation.Valid {
			r.Validation = &model.ModelValidation{}
			if err := json.Unmarshal([]byte(validation.String), r.Validation); err != nil {
				return nil, fmt.Errorf("decode validation of %s: %w", r.RunID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Last returns the newest record, or nil when the history is empty.
func (s *Store) Last(ctx context.Context) (*model.TrainingRecord, error) {
	recs, err := s.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM training_runs`).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}
