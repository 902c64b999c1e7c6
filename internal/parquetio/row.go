// Package parquetio writes and reads visit feature tables as Parquet files.
package parquetio

import (
	"time"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

// FeatureRow is the Parquet layout of one visit feature record.
type FeatureRow struct {
	VisitID   string `parquet:"visit_id"`
	PatientID string `parquet:"patient_id,optional"`
	BillID    string `parquet:"bill_id,optional"`
	VisitType string `parquet:"visit_type"`
	// BillDate is Unix milliseconds; nil when the bill had no date.
	BillDate *int64 `parquet:"bill_date,optional"`

	TotalServices          float64 `parquet:"total_services"`
	TotalBilledAmount      float64 `parquet:"total_billed_amount"`
	TotalExpectedAmount    float64 `parquet:"total_expected_amount"`
	BillingDelayHours      float64 `parquet:"billing_delay_hours"`
	UnbilledItemsCount     float64 `parquet:"unbilled_items_count"`
	PriceVarianceRatio     float64 `parquet:"price_variance_ratio"`
	PaymentCompletionRatio float64 `parquet:"payment_completion_ratio"`
	DiscountRatio          float64 `parquet:"discount_ratio"`
	VisitDurationHours     float64 `parquet:"visit_duration_hours"`
	ItemsPerVisit          float64 `parquet:"items_per_visit"`
}

// FromRecord converts a feature record to its Parquet row.
func FromRecord(r *model.VisitFeatureRecord) FeatureRow {
	row := FeatureRow{
		VisitID:                r.VisitID,
		PatientID:              r.PatientID,
		BillID:                 r.BillID,
		VisitType:              r.VisitType,
		TotalServices:          r.TotalServices,
		TotalBilledAmount:      r.TotalBilledAmount,
		TotalExpectedAmount:    r.TotalExpectedAmount,
		BillingDelayHours:      r.BillingDelayHours,
		UnbilledItemsCount:     r.UnbilledItemsCount,
		PriceVarianceRatio:     r.PriceVarianceRatio,
		PaymentCompletionRatio: r.PaymentCompletionRatio,
		DiscountRatio:          r.DiscountRatio,
		VisitDurationHours:     r.VisitDurationHours,
		ItemsPerVisit:          r.ItemsPerVisit,
	}
	if r.BillDate != nil {
		ms := r.BillDate.UnixMilli()
		row.BillDate = &ms
	}
	return row
}

// Record converts the row back to a feature record.
func (row *FeatureRow) Record() model.VisitFeatureRecord {
	r := model.VisitFeatureRecord{
		VisitID:                row.VisitID,
		PatientID:              row.PatientID,
		BillID:                 row.BillID,
		VisitType:              row.VisitType,
		TotalServices:          row.TotalServices,
		TotalBilledAmount:      row.TotalBilledAmount,
		TotalExpectedAmount:    row.TotalExpectedAmount,
		BillingDelayHours:      row.BillingDelayHours,
		UnbilledItemsCount:     row.UnbilledItemsCount,
		PriceVarianceRatio:     row.PriceVarianceRatio,
		PaymentCompletionRatio: row.PaymentCompletionRatio,
		DiscountRatio:          row.DiscountRatio,
		VisitDurationHours:     row.VisitDurationHours,
		ItemsPerVisit:          row.ItemsPerVisit,
	}
	if row.BillDate != nil {
		t := time.UnixMilli(*row.BillDate).UTC()
		r.BillDate = &t
	}
	return r
}
