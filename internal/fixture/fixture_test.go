package fixture

import (
	"testing"
	"time"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

func TestGenerate_Deterministic(t *testing.T) {
	now := time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC)
	a := Generate(Options{Visits: 200, Seed: 9, Now: now, LeakRate: 0.2})
	b := Generate(Options{Visits: 200, Seed: 9, Now: now, LeakRate: 0.2})
	if len(a.Billings) != len(b.Billings) || len(a.Tests) != len(b.Tests) || len(a.Leaks) != len(b.Leaks) {
		t.Fatalf("same seed produced different datasets")
	}
	if len(a.EMR) != 200 {
		t.Errorf("emr = %d, want one per visit", len(a.EMR))
	}
	if len(a.Leaks) == 0 {
		t.Error("expected some injected leaks at rate 0.2")
	}
}

func TestGenerate_InjectedPatterns(t *testing.T) {
	now := time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC)
	ds := Generate(Options{Visits: 400, Seed: 3, Now: now, LeakRate: 0.5})

	bills := map[string]*model.Billing{}
	for _, b := range ds.Billings {
		bills[b.VisitID] = b
	}
	from := now.AddDate(0, 0, -30)
	for visit, leak := range ds.Leaks {
		b, ok := bills[visit]
		switch leak {
		case LeakNoBill:
			if ok {
				t.Errorf("%s: no-bill visit has a bill", visit)
			}
			continue
		case LeakNoConsultation:
			if b.HasItem(model.ItemConsultation, "") {
				t.Errorf("%s: consultation should be missing", visit)
			}
		case LeakDelayed:
			emrDate := time.Time{}
			for _, e := range ds.EMR {
				if e.VisitID == visit {
					emrDate = *e.Date
				}
			}
			if d := b.BillDate.Sub(emrDate); d <= 48*time.Hour {
				t.Errorf("%s: delay %v, want > 48h", visit, d)
			}
		}
		if b.BillDate.Before(from) || b.BillDate.After(now) {
			t.Errorf("%s: bill date %v outside window", visit, b.BillDate)
		}
	}
}
