package features

import (
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
	"github.com/sktmbtkr01/his-quasar-production/internal/normalize"
)

// UnknownVisitType is used when a bill carries no visit type.
const UnknownVisitType = "unknown"

// PrepareVisitData computes one feature record per bill. Bills sharing a
// visit produce separate records.
func PrepareVisitData(billings []model.Billing) []model.VisitFeatureRecord {
	out := make([]model.VisitFeatureRecord, 0, len(billings))
	for i := range billings {
		out = append(out, visitRecord(&billings[i]))
	}
	return out
}

func visitRecord(b *model.Billing) model.VisitFeatureRecord {
	visitID := b.VisitID
	if visitID == "" {
		visitID = b.ID
	}
	visitType := b.VisitType
	if visitType == "" {
		visitType = UnknownVisitType
	}

	var expected float64
	var unbilled int
	for _, it := range b.Items {
		expected += normalize.Finite(it.Rate) * float64(it.Qty())
		if !it.Billed() {
			unbilled++
		}
	}

	created := b.CreatedAt
	if created == nil {
		created = b.BillDate
	}

	billed := normalize.Finite(b.GrandTotal)
	services := float64(len(b.Items))

	return model.VisitFeatureRecord{
		VisitID:   visitID,
		PatientID: b.PatientID,
		BillID:    b.ID,
		VisitType: visitType,
		BillDate:  b.BillDate,

		TotalServices:          services,
		TotalBilledAmount:      billed,
		TotalExpectedAmount:    expected,
		BillingDelayHours:      normalize.Finite(normalize.HoursBetween(created, b.BillDate)),
		UnbilledItemsCount:     float64(unbilled),
		PriceVarianceRatio:     normalize.VarianceRatio(billed, expected),
		PaymentCompletionRatio: normalize.Ratio(normalize.Finite(b.PaidAmount), billed),
		DiscountRatio:          normalize.Ratio(normalize.Finite(b.TotalDiscount), billed),
		VisitDurationHours:     0, // no admission/discharge timestamps on bills
		ItemsPerVisit:          services,
	}
}
