package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
	embedsql "github.com/sktmbtkr01/his-quasar-production/internal/sql"
)

func scanBilling(row pgx.CollectableRow) (model.Billing, error) {
	var (
		b       model.Billing
		visitID *string
	)
	err := row.Scan(&b.ID, &b.PatientID, &visitID, &b.VisitType, &b.BillDate, &b.CreatedAt,
		&b.GrandTotal, &b.PaidAmount, &b.TotalDiscount, &b.Items)
	if visitID != nil {
		b.VisitID = *visitID
	}
	return b, err
}

// Billings returns bills whose bill_date falls inside w.
func (s *Store) Billings(ctx context.Context, w model.Window) ([]model.Billing, error) {
	rows, err := s.pool.Query(ctx, embedsql.BillingsInWindow, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("query billings: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanBilling)
	if err != nil {
		return nil, fmt.Errorf("scan billings: %w", err)
	}
	return out, nil
}

// BillingsByVisit returns the earliest-created bill of each visit. Ids are
// queried in chunks of the store batch size.
func (s *Store) BillingsByVisit(ctx context.Context, visitIDs []string) (map[string]model.Billing, error) {
	out := make(map[string]model.Billing, len(visitIDs))
	for start := 0; start < len(visitIDs); start += s.batchSize {
		chunk := visitIDs[start:min(start+s.batchSize, len(visitIDs))]
		rows, err := s.pool.Query(ctx, embedsql.BillingsByVisit, chunk)
		if err != nil {
			return nil, fmt.Errorf("query billings by visit: %w", err)
		}
		bills, err := pgx.CollectRows(rows, scanBilling)
		if err != nil {
			return nil, fmt.Errorf("scan billings by visit: %w", err)
		}
		for _, b := range bills {
			out[b.VisitID] = b
		}
	}
	return out, nil
}

// Prescriptions returns dispensed prescriptions created inside w.
func (s *Store) Prescriptions(ctx context.Context, w model.Window) ([]model.Prescription, error) {
	rows, err := s.pool.Query(ctx, embedsql.PrescriptionsInWindow, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("query prescriptions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Prescription, error) {
		var (
			p       model.Prescription
			visitID *string
		)
		err := row.Scan(&p.ID, &p.PatientID, &visitID, &p.IsDispensed, &p.CreatedAt, &p.Medicines)
		if visitID != nil {
			p.VisitID = *visitID
		}
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan prescriptions: %w", err)
	}
	return out, nil
}

// ClinicalTests returns completed tests of kind created inside w.
func (s *Store) ClinicalTests(ctx context.Context, kind model.TestKind, w model.Window) ([]model.ClinicalTest, error) {
	rows, err := s.pool.Query(ctx, embedsql.ClinicalTestsInWindow, string(kind), w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("query %s tests: %w", kind, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ClinicalTest, error) {
		var (
			t       model.ClinicalTest
			k       string
			visitID *string
		)
		err := row.Scan(&t.ID, &k, &t.PatientID, &visitID, &t.TestRef, &t.Status, &t.CreatedAt)
		t.Kind = model.TestKind(k)
		if visitID != nil {
			t.VisitID = *visitID
		}
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s tests: %w", kind, err)
	}
	return out, nil
}

// EMREvents returns encounters dated inside w.
func (s *Store) EMREvents(ctx context.Context, w model.Window) ([]model.EMREvent, error) {
	rows, err := s.pool.Query(ctx, embedsql.EMRInWindow, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("query emr: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.EMREvent, error) {
		var (
			e       model.EMREvent
			visitID *string
			date    *time.Time
		)
		err := row.Scan(&e.ID, &e.PatientID, &visitID, &date)
		if visitID != nil {
			e.VisitID = *visitID
		}
		e.Date = date
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan emr: %w", err)
	}
	return out, nil
}

// Tariffs returns the full tariff master.
func (s *Store) Tariffs(ctx context.Context) ([]model.Tariff, error) {
	rows, err := s.pool.Query(ctx, embedsql.Tariffs)
	if err != nil {
		return nil, fmt.Errorf("query tariffs: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Tariff, error) {
		var (
			t                 model.Tariff
			service, itemCode *string
		)
		err := row.Scan(&service, &itemCode, &t.Rate, &t.Price)
		if service != nil {
			t.ServiceCode = *service
		}
		if itemCode != nil {
			t.ItemCode = *itemCode
		}
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan tariffs: %w", err)
	}
	return out, nil
}
