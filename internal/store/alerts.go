package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sktmbtkr01/his-quasar-production/internal/alerts"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
	embedsql "github.com/sktmbtkr01/his-quasar-production/internal/sql"
)

// InsertAlert writes a new alert row.
func (s *Store) InsertAlert(ctx context.Context, a *model.Alert) error {
	_, err := s.pool.Exec(ctx, embedsql.InsertAlert,
		a.ID, string(a.AnomalyType), a.DetectionDate, nullable(a.PatientID), nullable(a.VisitID), a.Description,
		a.Details.Service, a.Details.ExpectedRevenue, a.Details.ActualRevenue, a.Details.LeakageAmount,
		string(a.Status), a.AnomalyScore, int16(a.Priority), string(a.Source), a.Metadata, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", a.ID, err)
	}
	return nil
}

func scanAlert(row pgx.CollectableRow) (model.Alert, error) {
	var (
		a                   model.Alert
		typ, status, source string
		patient, visit      *string
		priority            int16
	)
	err := row.Scan(&a.ID, &typ, &a.DetectionDate, &patient, &visit, &a.Description,
		&a.Details.Service, &a.Details.ExpectedRevenue, &a.Details.ActualRevenue, &a.Details.LeakageAmount,
		&status, &a.ReviewedBy, &a.ReviewedAt, &a.ResolutionNotes,
		&a.AnomalyScore, &priority, &source, &a.Metadata, &a.CreatedAt)
	if err != nil {
		return a, err
	}
	a.AnomalyType = model.IssueType(typ)
	a.Status = model.AlertStatus(status)
	a.Source = model.Source(source)
	a.Priority = model.Priority(priority)
	if patient != nil {
		a.PatientID = *patient
	}
	if visit != nil {
		a.VisitID = *visit
	}
	return a, nil
}

// ListAlerts returns alerts matching f, newest detection first.
func (s *Store) ListAlerts(ctx context.Context, f model.AlertFilter) ([]model.Alert, error) {
	rows, err := s.pool.Query(ctx, embedsql.ListAlerts, string(f.Status), string(f.Type), f.Limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanAlert)
	if err != nil {
		return nil, fmt.Errorf("scan alerts: %w", err)
	}
	return out, nil
}

// GetAlert returns one alert or model.ErrAlertNotFound.
func (s *Store) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	rows, err := s.pool.Query(ctx, embedsql.GetAlert, id)
	if err != nil {
		return nil, fmt.Errorf("query alert: %w", err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAlert)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrAlertNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	return &a, nil
}

// UpdateAlertStatus sets status and reviewedAt; reviewer and notes only when
// non-nil. It reports whether a row matched.
func (s *Store) UpdateAlertStatus(ctx context.Context, id string, u model.StatusUpdate, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, embedsql.UpdateAlertStatus, id, string(u.Status), at, u.ReviewedBy, u.Notes)
	if err != nil {
		return false, fmt.Errorf("update alert %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// AlertGroups counts alerts and sums leakage per status or type.
func (s *Store) AlertGroups(ctx context.Context, by string) ([]model.GroupStat, error) {
	q := embedsql.AlertsByStatus
	switch by {
	case alerts.GroupByStatus:
	case alerts.GroupByType:
		q = embedsql.AlertsByType
	default:
		return nil, fmt.Errorf("unknown alert grouping %q", by)
	}
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("group alerts by %s: %w", by, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.GroupStat, error) {
		var g model.GroupStat
		err := row.Scan(&g.Key, &g.Count, &g.TotalLeakage)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan alert groups: %w", err)
	}
	return out, nil
}

// CountAlertsSince counts alerts detected at or after since.
func (s *Store) CountAlertsSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, embedsql.CountAlertsSince, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
