// Package store is the PostgreSQL implementation of the HIS read surface
// and the alert store.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/sktmbtkr01/his-quasar-production/internal/alerts"
	"github.com/sktmbtkr01/his-quasar-production/internal/db"
	"github.com/sktmbtkr01/his-quasar-production/internal/rules"
	embedsql "github.com/sktmbtkr01/his-quasar-production/internal/sql"
)

// DefaultBatchSize bounds the visit ids sent in one lookup query.
const DefaultBatchSize = 1000

// Store reads the his schema and owns leakage.ai_anomalies.
type Store struct {
	pool      *pgxpool.Pool
	batchSize int
	log       zerolog.Logger
}

var (
	_ rules.Source = (*Store)(nil)
	_ alerts.Store = (*Store)(nil)
)

// New wraps pool. batchSize <= 0 falls back to DefaultBatchSize.
func New(pool *pgxpool.Pool, batchSize int, log zerolog.Logger) *Store {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Store{pool: pool, batchSize: batchSize, log: log.With().Str("component", "store").Logger()}
}

// Pool returns the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Copy bulk-loads rows into table with the COPY protocol.
func Copy[T db.CopyRow](ctx context.Context, s *Store, table []string, cols []string, rows []T) (int64, error) {
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier(table), cols, db.Rows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %v: %w", table, err)
	}
	s.log.Debug().Strs("table", table).Int64("rows", n).Msg("copied rows")
	return n, nil
}

// TruncateHIS empties every source table.
func (s *Store) TruncateHIS(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, embedsql.TruncateHIS); err != nil {
		return fmt.Errorf("truncate his tables: %w", err)
	}
	return nil
}
