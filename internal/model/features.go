package model

import "time"

// Canonical feature column names. The order is fixed and shared by training
// and detection; changing it invalidates persisted models.
const (
	FeatTotalServices          = "total_services"
	FeatTotalBilledAmount      = "total_billed_amount"
	FeatTotalExpectedAmount    = "total_expected_amount"
	FeatBillingDelayHours      = "billing_delay_hours"
	FeatUnbilledItemsCount     = "unbilled_items_count"
	FeatPriceVarianceRatio     = "price_variance_ratio"
	FeatPaymentCompletionRatio = "payment_completion_ratio"
	FeatDiscountRatio          = "discount_ratio"
	FeatVisitDurationHours     = "visit_duration_hours"
	FeatItemsPerVisit          = "items_per_visit"
)

// FeatureNames lists the model input columns in canonical order.
var FeatureNames = []string{
	FeatTotalServices,
	FeatTotalBilledAmount,
	FeatTotalExpectedAmount,
	FeatBillingDelayHours,
	FeatUnbilledItemsCount,
	FeatPriceVarianceRatio,
	FeatPaymentCompletionRatio,
	FeatDiscountRatio,
	FeatVisitDurationHours,
	FeatItemsPerVisit,
}

// snapshotFeatures are the features copied into an AnomalyRecord.
var snapshotFeatures = []string{
	FeatTotalServices,
	FeatTotalBilledAmount,
	FeatTotalExpectedAmount,
	FeatPriceVarianceRatio,
	FeatUnbilledItemsCount,
	FeatPaymentCompletionRatio,
}

// VisitFeatureRecord is the per-bill aggregate the model is trained on.
type VisitFeatureRecord struct {
	VisitID   string     `json:"visit_id"`
	PatientID string     `json:"patient_id"`
	BillID    string     `json:"bill_id"`
	VisitType string     `json:"visit_type"`
	BillDate  *time.Time `json:"bill_date,omitempty"`

	TotalServices          float64 `json:"total_services"`
	TotalBilledAmount      float64 `json:"total_billed_amount"`
	TotalExpectedAmount    float64 `json:"total_expected_amount"`
	BillingDelayHours      float64 `json:"billing_delay_hours"`
	UnbilledItemsCount     float64 `json:"unbilled_items_count"`
	PriceVarianceRatio     float64 `json:"price_variance_ratio"`
	PaymentCompletionRatio float64 `json:"payment_completion_ratio"`
	DiscountRatio          float64 `json:"discount_ratio"`
	VisitDurationHours     float64 `json:"visit_duration_hours"`
	ItemsPerVisit          float64 `json:"items_per_visit"`
}

// Feature returns the named feature value. Unknown names yield 0.
func (r *VisitFeatureRecord) Feature(name string) float64 {
	switch name {
	case FeatTotalServices:
		return r.TotalServices
	case FeatTotalBilledAmount:
		return r.TotalBilledAmount
	case FeatTotalExpectedAmount:
		return r.TotalExpectedAmount
	case FeatBillingDelayHours:
		return r.BillingDelayHours
	case FeatUnbilledItemsCount:
		return r.UnbilledItemsCount
	case FeatPriceVarianceRatio:
		return r.PriceVarianceRatio
	case FeatPaymentCompletionRatio:
		return r.PaymentCompletionRatio
	case FeatDiscountRatio:
		return r.DiscountRatio
	case FeatVisitDurationHours:
		return r.VisitDurationHours
	case FeatItemsPerVisit:
		return r.ItemsPerVisit
	}
	return 0
}

// Snapshot returns the subset of features reported with an anomaly.
func (r *VisitFeatureRecord) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(snapshotFeatures))
	for _, name := range snapshotFeatures {
		out[name] = r.Feature(name)
	}
	return out
}

// FeatureMatrix is a row-major matrix with len(FeatureNames) columns.
type FeatureMatrix [][]float64

// Rows returns the number of rows.
func (m FeatureMatrix) Rows() int { return len(m) }

// Cols returns the column count, 0 for an empty matrix.
func (m FeatureMatrix) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Empty reports whether the matrix has no rows.
func (m FeatureMatrix) Empty() bool { return len(m) == 0 }

// NormalizationParams holds per-column z-score parameters.
type NormalizationParams struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Empty reports whether no parameters were recorded.
func (p NormalizationParams) Empty() bool { return len(p.Mean) == 0 }

// AnomalyRecord is one anomalous row joined back to its visit.
type AnomalyRecord struct {
	Index        int                `json:"index"`
	VisitID      string             `json:"visit_id"`
	PatientID    string             `json:"patient_id"`
	BillID       string             `json:"bill_id"`
	VisitType    string             `json:"visit_type"`
	AnomalyScore float64            `json:"anomaly_score"`
	Confidence   float64            `json:"confidence"`
	Features     map[string]float64 `json:"features"`
}
