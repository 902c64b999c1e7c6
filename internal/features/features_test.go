package features

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

type fakeSource struct {
	billings []model.Billing
	err      error
	windows  []model.Window
}

func (f *fakeSource) Billings(_ context.Context, w model.Window) ([]model.Billing, error) {
	f.windows = append(f.windows, w)
	return f.billings, f.err
}

func (f *fakeSource) Prescriptions(context.Context, model.Window) ([]model.Prescription, error) {
	return nil, f.err
}

func (f *fakeSource) ClinicalTests(context.Context, model.TestKind, model.Window) ([]model.ClinicalTest, error) {
	return nil, f.err
}

func (f *fakeSource) EMREvents(context.Context, model.Window) ([]model.EMREvent, error) {
	return nil, f.err
}

func (f *fakeSource) Tariffs(context.Context) ([]model.Tariff, error) {
	rate := 250.0
	price := 90.0
	return []model.Tariff{
		{ServiceCode: "CONSULTATION", Rate: &rate},
		{ItemCode: "CBC", Price: &price},
		{Rate: &rate},
	}, f.err
}

func ptr[T any](v T) *T { return &v }

func sampleBilling() model.Billing {
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	billed := created.Add(6 * time.Hour)
	return model.Billing{
		ID:            "bill-1",
		PatientID:     "pat-1",
		VisitID:       "visit-1",
		VisitType:     "opd",
		BillDate:      &billed,
		CreatedAt:     &created,
		GrandTotal:    800,
		PaidAmount:    400,
		TotalDiscount: 80,
		Items: []model.BillingItem{
			{ItemType: model.ItemConsultation, Rate: 500},
			{ItemType: model.ItemLab, ItemReference: "t1", Rate: 100, Quantity: ptr(3)},
			{ItemType: model.ItemMedicine, Rate: 50, Quantity: ptr(2), IsBilled: ptr(false)},
		},
	}
}

func TestPrepareVisitData(t *testing.T) {
	recs := PrepareVisitData([]model.Billing{sampleBilling()})
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	r := recs[0]
	if r.TotalServices != 3 || r.ItemsPerVisit != 3 {
		t.Errorf("services = %v/%v, want 3", r.TotalServices, r.ItemsPerVisit)
	}
	if r.TotalExpectedAmount != 900 {
		t.Errorf("expected = %v, want 900", r.TotalExpectedAmount)
	}
	if r.BillingDelayHours != 6 {
		t.Errorf("delay = %v, want 6", r.BillingDelayHours)
	}
	if r.UnbilledItemsCount != 1 {
		t.Errorf("unbilled = %v, want 1", r.UnbilledItemsCount)
	}
	if math.Abs(r.PriceVarianceRatio-100.0/900.0) > 1e-12 {
		t.Errorf("variance = %v, want %v", r.PriceVarianceRatio, 100.0/900.0)
	}
	if r.PaymentCompletionRatio != 0.5 {
		t.Errorf("payment ratio = %v, want 0.5", r.PaymentCompletionRatio)
	}
	if r.DiscountRatio != 0.1 {
		t.Errorf("discount ratio = %v, want 0.1", r.DiscountRatio)
	}
	if r.VisitDurationHours != 0 {
		t.Errorf("visit duration = %v, want 0", r.VisitDurationHours)
	}
}

func TestPrepareVisitData_Fallbacks(t *testing.T) {
	b := model.Billing{ID: "bill-9", GrandTotal: 0, PaidAmount: 10}
	r := PrepareVisitData([]model.Billing{b})[0]
	if r.VisitID != "bill-9" {
		t.Errorf("visit id = %q, want bill id fallback", r.VisitID)
	}
	if r.VisitType != UnknownVisitType {
		t.Errorf("visit type = %q, want %q", r.VisitType, UnknownVisitType)
	}
	if r.PaymentCompletionRatio != 0 || r.DiscountRatio != 0 || r.PriceVarianceRatio != 0 {
		t.Errorf("ratios should be 0 for zero billed/expected: %+v", r)
	}
	if r.BillingDelayHours != 0 {
		t.Errorf("delay = %v, want 0 with no dates", r.BillingDelayHours)
	}
}

func TestPrepareVisitData_OneRecordPerBill(t *testing.T) {
	a, b := sampleBilling(), sampleBilling()
	b.ID = "bill-2"
	recs := PrepareVisitData([]model.Billing{a, b})
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].VisitID != recs[1].VisitID {
		t.Errorf("records should share the visit id")
	}
}

func TestExtractFeatures_ColumnCount(t *testing.T) {
	recs := PrepareVisitData([]model.Billing{sampleBilling(), {ID: "x"}})
	m := ExtractFeatures(recs)
	if m.Rows() != 2 {
		t.Fatalf("rows = %d, want 2", m.Rows())
	}
	for i, row := range m {
		if len(row) != len(model.FeatureNames) {
			t.Errorf("row %d has %d columns, want %d", i, len(row), len(model.FeatureNames))
		}
	}
}

func TestProject_UnknownAndNonFinite(t *testing.T) {
	recs := []model.VisitFeatureRecord{{TotalBilledAmount: math.Inf(1), DiscountRatio: math.NaN(), TotalServices: 2}}
	m := Project(recs, []string{"total_services", "no_such_feature", "total_billed_amount", "discount_ratio"})
	want := []float64{2, 0, 0, 0}
	for j, v := range m[0] {
		if v != want[j] {
			t.Errorf("col %d = %v, want %v", j, v, want[j])
		}
	}
}

func TestNormalizeFeatures_ConstantColumn(t *testing.T) {
	m := model.FeatureMatrix{{5, 1}, {5, 3}, {5, 5}}
	out, params := NormalizeFeatures(m)
	for i, row := range out {
		if row[0] != 0 {
			t.Errorf("row %d constant column = %v, want 0", i, row[0])
		}
		for _, v := range row {
			if math.IsNaN(v) {
				t.Fatalf("row %d contains NaN", i)
			}
		}
	}
	if params.Std[0] != 1 {
		t.Errorf("constant std = %v, want floor 1", params.Std[0])
	}
	if params.Mean[1] != 3 {
		t.Errorf("mean = %v, want 3", params.Mean[1])
	}
	// population std of {1,3,5}
	if math.Abs(params.Std[1]-math.Sqrt(8.0/3.0)) > 1e-12 {
		t.Errorf("std = %v, want %v", params.Std[1], math.Sqrt(8.0/3.0))
	}
}

func TestNormalizeFeatures_Empty(t *testing.T) {
	out, params := NormalizeFeatures(model.FeatureMatrix{})
	if !out.Empty() || !params.Empty() {
		t.Errorf("empty input should give empty output, got %v %+v", out, params)
	}
}

func TestApplyNormalization(t *testing.T) {
	params := model.NormalizationParams{Mean: []float64{10, 0}, Std: []float64{2, 0}}
	out, ok := ApplyNormalization(model.FeatureMatrix{{14, 3}}, params)
	if !ok {
		t.Fatal("expected params to apply")
	}
	if out[0][0] != 2 || out[0][1] != 3 {
		t.Errorf("got %v, want [2 3]", out[0])
	}
	if _, ok := ApplyNormalization(model.FeatureMatrix{{1, 2, 3}}, params); ok {
		t.Error("mismatched params should not apply")
	}
}

func TestProcessor_DetectionData(t *testing.T) {
	src := &fakeSource{billings: []model.Billing{sampleBilling()}}
	p := NewProcessor(src, 90, zerolog.Nop())
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	ds, err := p.DetectionData(context.Background(), 7)
	if err != nil {
		t.Fatalf("DetectionData: %v", err)
	}
	if ds.Features.Rows() != 1 || len(ds.Visits) != 1 {
		t.Fatalf("got %d rows / %d visits, want 1", ds.Features.Rows(), len(ds.Visits))
	}
	if want := now.AddDate(0, 0, -7); !src.windows[0].From.Equal(want) {
		t.Errorf("window from = %v, want %v", src.windows[0].From, want)
	}
}

func TestProcessor_SourceFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	p := NewProcessor(src, 90, zerolog.Nop())

	ds, err := p.TrainingData(context.Background())
	if !errors.Is(err, model.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	if !ds.Empty() || len(ds.Visits) != 0 {
		t.Errorf("failed pipeline must return an empty dataset")
	}

	bills, err := p.FetchBillings(context.Background(), model.Window{})
	if err == nil || bills == nil || len(bills) != 0 {
		t.Errorf("FetchBillings = %v, %v; want empty slice and error", bills, err)
	}
}

func TestProcessor_NoBillings(t *testing.T) {
	p := NewProcessor(&fakeSource{}, 90, zerolog.Nop())
	ds, err := p.TrainingData(context.Background())
	if err != nil {
		t.Fatalf("TrainingData: %v", err)
	}
	if !ds.Empty() {
		t.Errorf("expected empty dataset")
	}
}

func TestProcessor_FetchTariffs(t *testing.T) {
	p := NewProcessor(&fakeSource{}, 90, zerolog.Nop())
	table, err := p.FetchTariffs(context.Background())
	if err != nil {
		t.Fatalf("FetchTariffs: %v", err)
	}
	if len(table) != 2 {
		t.Errorf("table has %d entries, want 2 (code-less row skipped)", len(table))
	}
	if table["CONSULTATION"] != 250 || table["CBC"] != 90 {
		t.Errorf("unexpected table %v", table)
	}
}
