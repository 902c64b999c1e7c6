// Package fixture generates a synthetic HIS dataset with known leakage for
// demos and integration tests.
package fixture

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

// Leak names one injected leakage pattern.
type Leak string

const (
	LeakNone             Leak = ""
	LeakNoBill           Leak = "no-bill"
	LeakNoConsultation   Leak = "no-consultation"
	LeakUnbilledMedicine Leak = "unbilled-medicine"
	LeakUnbilledLab      Leak = "unbilled-lab"
	LeakUnbilledScan     Leak = "unbilled-radiology"
	LeakUnderpriced      Leak = "underpriced"
	LeakDuplicate        Leak = "duplicate"
	LeakDelayed          Leak = "delayed"
)

// AllLeaks lists the injectable patterns.
var AllLeaks = []Leak{
	LeakNoBill, LeakNoConsultation, LeakUnbilledMedicine, LeakUnbilledLab,
	LeakUnbilledScan, LeakUnderpriced, LeakDuplicate, LeakDelayed,
}

// Options control generation.
type Options struct {
	Visits int
	// Days spreads visits over the trailing window ending at Now.
	Days     int
	Now      time.Time
	Seed     uint64
	LeakRate float64
}

// Dataset is one generated HIS snapshot. Leaks maps visit id to the
// pattern injected into it.
type Dataset struct {
	Billings      []*model.Billing
	Prescriptions []*model.Prescription
	Tests         []*model.ClinicalTest
	EMR           []*model.EMREvent
	Tariffs       []*model.Tariff
	Leaks         map[string]Leak
}

type catalogEntry struct {
	code string
	rate float64
}

var (
	labCatalog   = []catalogEntry{{"CBC", 350}, {"LFT", 600}, {"KFT", 650}, {"HBA1C", 450}}
	scanCatalog  = []catalogEntry{{"XRAY", 800}, {"USG", 1500}, {"CT", 4500}, {"MRI", 8000}}
	drugCatalog  = []catalogEntry{{"M001", 12}, {"M002", 45}, {"M003", 120}, {"M004", 300}}
	consultation = catalogEntry{model.ConsultationTariffCode, 500}
)

// Tariffs returns the tariff master used by Generate.
func Tariffs() []*model.Tariff {
	var out []*model.Tariff
	rate := func(v float64) *float64 { return &v }
	out = append(out, &model.Tariff{ServiceCode: consultation.code, Rate: rate(consultation.rate)})
	for _, c := range labCatalog {
		out = append(out, &model.Tariff{ServiceCode: c.code, Rate: rate(c.rate)})
	}
	for _, c := range scanCatalog {
		out = append(out, &model.Tariff{ItemCode: c.code, Price: rate(c.rate)})
	}
	return out
}

// Generate builds a deterministic dataset for opts.
func Generate(opts Options) *Dataset {
	if opts.Visits <= 0 {
		opts.Visits = 500
	}
	if opts.Days <= 0 {
		opts.Days = 30
	}
	opts.Days = max(opts.Days, 5)
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	rng := rand.New(rand.NewPCG(opts.Seed, 0x6c65616b))
	g := &generator{rng: rng, opts: opts, ds: &Dataset{Tariffs: Tariffs(), Leaks: map[string]Leak{}}}
	for i := range opts.Visits {
		leak := LeakNone
		if rng.Float64() < opts.LeakRate {
			leak = AllLeaks[rng.IntN(len(AllLeaks))]
		}
		g.visit(i, leak)
	}
	return g.ds
}

type generator struct {
	rng  *rand.Rand
	opts Options
	ds   *Dataset
}

func (g *generator) visit(i int, leak Leak) {
	rng := g.rng
	visitID := fmt.Sprintf("VIS-%06d", i)
	patientID := fmt.Sprintf("PAT-%05d", rng.IntN(g.opts.Visits/2+1))
	visitType := "opd"
	if rng.IntN(5) == 0 {
		visitType = "ipd"
	}
	// Encounters end four days before Now so delayed bills still land in
	// the window.
	start := g.opts.Now.AddDate(0, 0, -g.opts.Days).Add(time.Hour)
	span := time.Duration(max(g.opts.Days-4, 1)) * 24 * time.Hour
	encounter := start.Add(time.Duration(rng.Int64N(int64(span))))
	if leak != LeakNone {
		g.ds.Leaks[visitID] = leak
	}

	emr := &model.EMREvent{ID: "EMR-" + visitID, PatientID: patientID, VisitID: visitID, Date: ptr(encounter)}
	g.ds.EMR = append(g.ds.EMR, emr)

	billDate := encounter.Add(time.Duration(1+rng.IntN(6)) * time.Hour)
	if leak == LeakDelayed {
		billDate = encounter.Add(time.Duration(50+rng.IntN(40)) * time.Hour)
	}
	bill := &model.Billing{
		ID:        "BILL-" + visitID,
		PatientID: patientID,
		VisitID:   visitID,
		VisitType: visitType,
		BillDate:  ptr(billDate),
		CreatedAt: ptr(billDate),
	}
	if leak != LeakNoConsultation {
		bill.Items = append(bill.Items, model.BillingItem{
			ItemType:      model.ItemConsultation,
			ItemReference: emr.ID,
			ServiceCode:   consultation.code,
			Rate:          consultation.rate,
			Amount:        consultation.rate,
		})
	}

	for n := range rng.IntN(3) {
		c := labCatalog[rng.IntN(len(labCatalog))]
		test := &model.ClinicalTest{
			ID: fmt.Sprintf("LAB-%s-%d", visitID, n), Kind: model.TestLab,
			PatientID: patientID, VisitID: visitID, TestRef: c.code,
			Status: model.TestStatusCompleted, CreatedAt: encounter.Add(30 * time.Minute),
		}
		g.ds.Tests = append(g.ds.Tests, test)
		if leak == LeakUnbilledLab && n == 0 {
			continue
		}
		rate := c.rate
		if leak == LeakUnderpriced && n == 0 {
			rate = c.rate * 0.5
		}
		item := model.BillingItem{ItemType: model.ItemLab, ItemReference: test.ID, ItemCode: c.code, Rate: rate, Amount: rate}
		bill.Items = append(bill.Items, item)
		if leak == LeakDuplicate && n == 0 {
			bill.Items = append(bill.Items, item)
		}
	}
	if leak == LeakUnbilledLab && !hasTest(g.ds.Tests, visitID, model.TestLab) {
		c := labCatalog[0]
		g.ds.Tests = append(g.ds.Tests, &model.ClinicalTest{
			ID: "LAB-" + visitID + "-x", Kind: model.TestLab, PatientID: patientID, VisitID: visitID,
			TestRef: c.code, Status: model.TestStatusCompleted, CreatedAt: encounter.Add(time.Hour),
		})
	}

	if visitType == "ipd" || rng.IntN(4) == 0 || leak == LeakUnbilledScan {
		c := scanCatalog[rng.IntN(len(scanCatalog))]
		test := &model.ClinicalTest{
			ID: "RAD-" + visitID, Kind: model.TestRadiology, PatientID: patientID, VisitID: visitID,
			TestRef: c.code, Status: model.TestStatusCompleted, CreatedAt: encounter.Add(2 * time.Hour),
		}
		g.ds.Tests = append(g.ds.Tests, test)
		if leak != LeakUnbilledScan {
			bill.Items = append(bill.Items, model.BillingItem{
				ItemType: model.ItemRadiology, ItemReference: test.ID, ItemCode: c.code, Rate: c.rate, Amount: c.rate,
			})
		}
	}

	if rng.IntN(2) == 0 || leak == LeakUnbilledMedicine {
		rx := &model.Prescription{
			ID: "RX-" + visitID, PatientID: patientID, VisitID: visitID,
			IsDispensed: true, CreatedAt: encounter.Add(3 * time.Hour),
		}
		for n := range 1 + rng.IntN(3) {
			c := drugCatalog[rng.IntN(len(drugCatalog))]
			q := 5 + rng.IntN(10)
			med := model.Medicine{MedicineID: fmt.Sprintf("%s-%d", c.code, n), Name: c.code, Rate: c.rate, Quantity: ptr(q)}
			if leak == LeakUnbilledMedicine && n == 0 {
				// Worth more than the default minimum leakage.
				med.Rate, med.Quantity = 300, ptr(2)
			} else {
				amount := med.Value()
				bill.Items = append(bill.Items, model.BillingItem{
					ItemType: model.ItemMedicine, ItemReference: med.MedicineID, Rate: c.rate, Quantity: ptr(q), Amount: amount,
				})
			}
			rx.Medicines = append(rx.Medicines, med)
		}
		g.ds.Prescriptions = append(g.ds.Prescriptions, rx)
	}

	for _, it := range bill.Items {
		bill.GrandTotal += it.Amount
	}
	if rng.IntN(10) == 0 {
		bill.TotalDiscount = bill.GrandTotal * 0.05
		bill.GrandTotal -= bill.TotalDiscount
	}
	bill.PaidAmount = bill.GrandTotal
	if rng.IntN(4) == 0 {
		bill.PaidAmount = bill.GrandTotal * rng.Float64()
	}
	if leak != LeakNoBill {
		g.ds.Billings = append(g.ds.Billings, bill)
	}
}

func hasTest(tests []*model.ClinicalTest, visitID string, kind model.TestKind) bool {
	for _, t := range tests {
		if t.VisitID == visitID && t.Kind == kind {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T { return &v }
