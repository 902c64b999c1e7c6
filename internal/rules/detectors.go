package rules

import (
	"context"
	"fmt"
	"math"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
	"github.com/sktmbtkr01/his-quasar-production/internal/normalize"
)

// UnbilledServices flags EMR encounters whose visit has no bill, or whose
// bill has no consultation line.
func (a *Analyzer) UnbilledServices(ctx context.Context, w model.Window) ([]model.Issue, error) {
	events, err := a.src.EMREvents(ctx, w)
	if err != nil {
		return nil, a.fetchErr("emr", err)
	}
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.VisitID)
	}
	bills, err := a.billingsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	rate := a.Tariffs().Rate(model.ConsultationTariffCode, a.th.ConsultationRate)
	issues := []model.Issue{}
	for _, e := range events {
		if e.VisitID == "" {
			continue
		}
		is := model.Issue{
			Type:            model.IssueUnbilledService,
			VisitID:         e.VisitID,
			PatientID:       e.PatientID,
			Service:         model.ItemConsultation,
			ExpectedRevenue: rate,
			ActualRevenue:   0,
			LeakageAmount:   rate,
			Source:          model.SourceRules,
			Detail:          model.UnbilledServiceDetail{EMRID: e.ID, EMRDate: e.Date},
		}
		bill, ok := bills[e.VisitID]
		switch {
		case !ok:
			is.Description = "EMR record exists but no billing found"
			is.Severity = model.SeverityHigh
		case !bill.HasItem(model.ItemConsultation, ""):
			is.BillID = bill.ID
			is.Description = "Consultation not billed despite EMR record"
			is.Severity = model.SeverityMedium
		default:
			continue
		}
		issues = append(issues, is)
	}
	return issues, nil
}

// UnbilledMedicines flags dispensed medicines missing from the visit's bill.
// A visit without any bill yields one issue for the whole prescription.
func (a *Analyzer) UnbilledMedicines(ctx context.Context, w model.Window) ([]model.Issue, error) {
	rxs, err := a.src.Prescriptions(ctx, w)
	if err != nil {
		return nil, a.fetchErr("prescriptions", err)
	}
	ids := make([]string, 0, len(rxs))
	for _, rx := range rxs {
		ids = append(ids, rx.VisitID)
	}
	bills, err := a.billingsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	issues := []model.Issue{}
	for _, rx := range rxs {
		if rx.VisitID == "" || len(rx.Medicines) == 0 {
			continue
		}
		bill, ok := bills[rx.VisitID]
		if !ok {
			values := make([]float64, len(rx.Medicines))
			for i, m := range rx.Medicines {
				values[i] = m.Value()
			}
			total := normalize.SumMoney(values...)
			if total <= 0 {
				continue
			}
			issues = append(issues, model.Issue{
				Type:            model.IssueUnbilledMedicine,
				VisitID:         rx.VisitID,
				PatientID:       rx.PatientID,
				Description:     "Medicines dispensed but visit has no billing",
				Service:         model.ItemMedicine,
				ExpectedRevenue: total,
				LeakageAmount:   total,
				Severity:        model.SeverityHigh,
				Source:          model.SourceRules,
				Detail: model.UnbilledMedicineDetail{
					PrescriptionID: rx.ID,
					MedicineCount:  len(rx.Medicines),
				},
			})
			continue
		}

		billed := make(map[string]bool)
		for _, it := range bill.Items {
			if it.ItemType == model.ItemMedicine {
				billed[it.ItemReference] = true
			}
		}
		for _, m := range rx.Medicines {
			if m.MedicineID == "" || billed[m.MedicineID] {
				continue
			}
			value := normalize.RoundMoney(m.Value())
			if value <= a.th.MinLeakage {
				continue
			}
			issues = append(issues, model.Issue{
				Type:            model.IssueUnbilledMedicine,
				VisitID:         rx.VisitID,
				PatientID:       rx.PatientID,
				BillID:          bill.ID,
				Description:     "Dispensed medicine not found in billing",
				Service:         model.ItemMedicine,
				ExpectedRevenue: value,
				LeakageAmount:   value,
				Severity:        model.SeverityMedium,
				Source:          model.SourceRules,
				Detail: model.UnbilledMedicineDetail{
					PrescriptionID: rx.ID,
					MedicineID:     m.MedicineID,
				},
			})
		}
	}
	return issues, nil
}

// UnbilledLabTests flags completed lab tests absent from an existing bill.
func (a *Analyzer) UnbilledLabTests(ctx context.Context, w model.Window) ([]model.Issue, error) {
	return a.unbilledTests(ctx, w, model.TestLab)
}

// UnbilledRadiologyTests flags completed radiology tests absent from an
// existing bill.
func (a *Analyzer) UnbilledRadiologyTests(ctx context.Context, w model.Window) ([]model.Issue, error) {
	return a.unbilledTests(ctx, w, model.TestRadiology)
}

func (a *Analyzer) unbilledTests(ctx context.Context, w model.Window, kind model.TestKind) ([]model.Issue, error) {
	tests, err := a.src.ClinicalTests(ctx, kind, w)
	if err != nil {
		return nil, a.fetchErr(string(kind)+"_tests", err)
	}
	ids := make([]string, 0, len(tests))
	for _, t := range tests {
		ids = append(ids, t.VisitID)
	}
	bills, err := a.billingsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	issueType, itemType, fallback, label := model.IssueUnbilledLab, model.ItemLab, a.th.LabRate, "lab test"
	if kind == model.TestRadiology {
		issueType, itemType, fallback, label = model.IssueUnbilledRadiology, model.ItemRadiology, a.th.RadiologyRate, "radiology test"
	}
	tariffs := a.Tariffs()

	issues := []model.Issue{}
	for _, t := range tests {
		if t.VisitID == "" {
			continue
		}
		bill, ok := bills[t.VisitID]
		if !ok || bill.HasItem(itemType, t.ID) {
			continue
		}
		cost := tariffs.Rate(t.TestRef, fallback)
		issues = append(issues, model.Issue{
			Type:            issueType,
			VisitID:         t.VisitID,
			PatientID:       t.PatientID,
			BillID:          bill.ID,
			Description:     fmt.Sprintf("Completed %s not found in billing", label),
			Service:         itemType,
			ExpectedRevenue: cost,
			LeakageAmount:   cost,
			Severity:        model.SeverityMedium,
			Source:          model.SourceRules,
			Detail:          model.UnbilledTestDetail{TestID: t.ID, TestRef: t.TestRef, Kind: kind},
		})
	}
	return issues, nil
}

// PriceMismatches flags lines charged below tariff by more than the variance
// threshold where the shortfall exceeds the minimum leakage.
func (a *Analyzer) PriceMismatches(ctx context.Context, w model.Window) ([]model.Issue, error) {
	bills, err := a.src.Billings(ctx, w)
	if err != nil {
		return nil, a.fetchErr("billings", err)
	}
	limit := a.th.PriceVariancePercent / 100
	tariffs := a.Tariffs()

	issues := []model.Issue{}
	for _, b := range bills {
		for _, it := range b.Items {
			code := it.Code()
			tariff, ok := tariffs.Lookup(code)
			if !ok || tariff <= 0 {
				continue
			}
			variance := math.Abs(it.Rate-tariff) / tariff
			if variance <= limit {
				continue
			}
			qty := float64(it.Qty())
			leakage := normalize.RoundMoney(math.Max(0, tariff-it.Rate) * qty)
			if leakage <= a.th.MinLeakage {
				continue
			}
			sev := model.SeverityMedium
			if variance >= 0.3 {
				sev = model.SeverityHigh
			}
			service := it.ItemType
			if service == "" {
				service = "unknown"
			}
			issues = append(issues, model.Issue{
				Type:            model.IssuePriceMismatch,
				VisitID:         b.VisitID,
				PatientID:       b.PatientID,
				BillID:          b.ID,
				Description:     fmt.Sprintf("Charged rate differs from tariff by %.1f%%", variance*100),
				Service:         service,
				ExpectedRevenue: normalize.RoundMoney(tariff * qty),
				ActualRevenue:   normalize.RoundMoney(it.Rate * qty),
				LeakageAmount:   leakage,
				Severity:        sev,
				Source:          model.SourceRules,
				Detail: model.PriceMismatchDetail{
					ItemCode:        code,
					ChargedRate:     it.Rate,
					TariffRate:      tariff,
					VariancePercent: variance * 100,
					Quantity:        it.Qty(),
				},
			})
		}
	}
	return issues, nil
}

// DuplicateBillings flags the second and later occurrences of an
// itemType:itemReference pair within one bill.
func (a *Analyzer) DuplicateBillings(ctx context.Context, w model.Window) ([]model.Issue, error) {
	bills, err := a.src.Billings(ctx, w)
	if err != nil {
		return nil, a.fetchErr("billings", err)
	}
	issues := []model.Issue{}
	for _, b := range bills {
		seen := make(map[string]bool, len(b.Items))
		for _, it := range b.Items {
			if it.ItemType == "" || it.ItemReference == "" {
				continue
			}
			key := it.ItemType + ":" + it.ItemReference
			if !seen[key] {
				seen[key] = true
				continue
			}
			issues = append(issues, model.Issue{
				Type:        model.IssueDuplicateBilling,
				VisitID:     b.VisitID,
				PatientID:   b.PatientID,
				BillID:      b.ID,
				Description: fmt.Sprintf("Duplicate %s item in billing", it.ItemType),
				Service:     it.ItemType,
				Severity:    model.SeverityHigh,
				Source:      model.SourceRules,
				Detail: model.DuplicateBillingDetail{
					ItemReference:   it.ItemReference,
					DuplicateAmount: it.Amount,
				},
			})
		}
	}
	return issues, nil
}

// DelayedBillings flags visits billed more than the delay threshold after
// the EMR encounter.
func (a *Analyzer) DelayedBillings(ctx context.Context, w model.Window) ([]model.Issue, error) {
	events, err := a.src.EMREvents(ctx, w)
	if err != nil {
		return nil, a.fetchErr("emr", err)
	}
	ids := make([]string, 0, len(events))
	for _, e := range events {
		if e.Date != nil {
			ids = append(ids, e.VisitID)
		}
	}
	bills, err := a.billingsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	issues := []model.Issue{}
	for _, e := range events {
		if e.VisitID == "" || e.Date == nil {
			continue
		}
		bill, ok := bills[e.VisitID]
		if !ok {
			continue
		}
		billDate := bill.EffectiveDate()
		if billDate == nil {
			continue
		}
		delay := billDate.Sub(*e.Date).Hours()
		if delay <= a.th.BillingDelayHours {
			continue
		}
		sev := model.SeverityMedium
		if delay < 48 {
			sev = model.SeverityLow
		}
		issues = append(issues, model.Issue{
			Type:        model.IssueUnusualPattern,
			VisitID:     e.VisitID,
			PatientID:   e.PatientID,
			BillID:      bill.ID,
			Description: fmt.Sprintf("Billing delayed by %.0f hours", delay),
			Service:     "billing",
			Severity:    sev,
			Source:      model.SourceRules,
			Detail: model.DelayedBillingDetail{
				DelayHours: delay,
				EMRDate:    *e.Date,
				BillDate:   *billDate,
			},
		})
	}
	return issues, nil
}
