package model

import "time"

// TestKind distinguishes the two clinical test collections.
type TestKind string

const (
	TestLab       TestKind = "lab"
	TestRadiology TestKind = "radiology"
)

// TestStatusCompleted is the only test status the rule engine looks at.
const TestStatusCompleted = "completed"

// Prescription is a pharmacy prescription attached to a visit.
type Prescription struct {
	ID          string
	PatientID   string
	VisitID     string
	IsDispensed bool
	CreatedAt   time.Time
	Medicines   []Medicine
}

// Medicine is one prescribed medicine line.
type Medicine struct {
	MedicineID string  `json:"medicine"`
	Name       string  `json:"name,omitempty"`
	Rate       float64 `json:"rate"`
	Quantity   *int    `json:"quantity,omitempty"`
}

// Qty returns the dispensed quantity, 1 when absent.
func (m Medicine) Qty() int {
	if m.Quantity == nil {
		return 1
	}
	return *m.Quantity
}

// Value is rate × quantity.
func (m Medicine) Value() float64 {
	return m.Rate * float64(m.Qty())
}

// ClinicalTest is a lab or radiology order. TestRef points at the test
// catalogue entry and doubles as the tariff code.
type ClinicalTest struct {
	ID        string
	Kind      TestKind
	PatientID string
	VisitID   string
	TestRef   string
	Status    string
	CreatedAt time.Time
}

// EMREvent is a clinical encounter recorded in the EMR.
type EMREvent struct {
	ID        string
	PatientID string
	VisitID   string
	Date      *time.Time
}

// PrescriptionColumns returns the ordered column names for COPY into his.prescriptions.
func PrescriptionColumns() []string {
	return []string{"id", "patient_id", "visit_id", "is_dispensed", "created_at", "medicines"}
}

// CopyValues returns the row values in the same order as PrescriptionColumns().
func (p *Prescription) CopyValues() []any {
	meds := p.Medicines
	if meds == nil {
		meds = []Medicine{}
	}
	return []any{p.ID, p.PatientID, nullable(p.VisitID), p.IsDispensed, p.CreatedAt, meds}
}

// ClinicalTestColumns returns the ordered column names for COPY into his.clinical_tests.
func ClinicalTestColumns() []string {
	return []string{"id", "kind", "patient_id", "visit_id", "test_ref", "status", "created_at"}
}

// CopyValues returns the row values in the same order as ClinicalTestColumns().
func (t *ClinicalTest) CopyValues() []any {
	return []any{t.ID, string(t.Kind), t.PatientID, nullable(t.VisitID), t.TestRef, t.Status, t.CreatedAt}
}

// EMRColumns returns the ordered column names for COPY into his.emr.
func EMRColumns() []string {
	return []string{"id", "patient_id", "visit_id", "date"}
}

// CopyValues returns the row values in the same order as EMRColumns().
func (e *EMREvent) CopyValues() []any {
	return []any{e.ID, e.PatientID, nullable(e.VisitID), e.Date}
}
