package model

import "time"

// IssueType classifies a detected leakage issue.
type IssueType string

const (
	IssueUnbilledService   IssueType = "unbilled-service"
	IssueUnbilledMedicine  IssueType = "unbilled-medicine"
	IssueUnbilledLab       IssueType = "unbilled-lab-test"
	IssueUnbilledRadiology IssueType = "unbilled-radiology-test"
	IssuePriceMismatch     IssueType = "price-mismatch"
	IssueUnusualPattern    IssueType = "unusual-pattern"
	IssueDuplicateBilling  IssueType = "duplicate-billing"
	IssueMissingCharges    IssueType = "missing-charges"
)

// AllIssueTypes lists every issue type in canonical order.
var AllIssueTypes = []IssueType{
	IssueUnbilledService,
	IssueUnbilledMedicine,
	IssueUnbilledLab,
	IssueUnbilledRadiology,
	IssuePriceMismatch,
	IssueUnusualPattern,
	IssueDuplicateBilling,
	IssueMissingCharges,
}

// ParseIssueType returns the IssueType for name, or ok=false.
func ParseIssueType(name string) (IssueType, bool) {
	for _, t := range AllIssueTypes {
		if string(t) == name {
			return t, true
		}
	}
	return "", false
}

// Severity is assigned by the detector that raised an issue.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Source records which detection path raised an issue.
type Source string

const (
	SourceML    Source = "ml"
	SourceRules Source = "rules"
)

// Issue is the common shape produced by the anomaly model and the rule
// engine before merging. Detail carries the type-specific fields.
type Issue struct {
	Type            IssueType   `json:"type"`
	VisitID         string      `json:"visit_id"`
	PatientID       string      `json:"patient_id"`
	BillID          string      `json:"bill_id,omitempty"`
	Description     string      `json:"description"`
	Service         string      `json:"service"`
	ExpectedRevenue float64     `json:"expected_revenue"`
	ActualRevenue   float64     `json:"actual_revenue"`
	LeakageAmount   float64     `json:"leakage_amount"`
	Severity        Severity    `json:"severity"`
	Source          Source      `json:"source,omitempty"`
	AnomalyScore    float64     `json:"anomaly_score,omitempty"`
	Detail          IssueDetail `json:"detail,omitempty"`
}

// Key is the merge key: one issue per visit and type survives deduplication.
func (i *Issue) Key() string {
	return i.VisitID + ":" + string(i.Type)
}

// IssueDetail is implemented by the closed set of per-type detail structs.
type IssueDetail interface {
	issueDetail()
}

// UnbilledServiceDetail accompanies unbilled-service issues.
type UnbilledServiceDetail struct {
	EMRID   string     `json:"emr_id,omitempty"`
	EMRDate *time.Time `json:"emr_date,omitempty"`
}

// UnbilledMedicineDetail accompanies unbilled-medicine issues. MedicineID is
// empty when the whole prescription is unbilled.
type UnbilledMedicineDetail struct {
	PrescriptionID string `json:"prescription_id"`
	MedicineID     string `json:"medicine_id,omitempty"`
	MedicineCount  int    `json:"medicine_count,omitempty"`
}

// UnbilledTestDetail accompanies unbilled lab and radiology issues.
type UnbilledTestDetail struct {
	TestID  string   `json:"test_id"`
	TestRef string   `json:"test_ref,omitempty"`
	Kind    TestKind `json:"kind"`
}

// PriceMismatchDetail accompanies price-mismatch issues.
type PriceMismatchDetail struct {
	ItemCode        string  `json:"item_code"`
	ChargedRate     float64 `json:"charged_rate"`
	TariffRate      float64 `json:"tariff_rate"`
	VariancePercent float64 `json:"variance_percent"`
	Quantity        int     `json:"quantity"`
}

// DuplicateBillingDetail accompanies duplicate-billing issues.
type DuplicateBillingDetail struct {
	ItemReference   string  `json:"item_reference"`
	DuplicateAmount float64 `json:"duplicate_amount"`
}

// DelayedBillingDetail accompanies unusual-pattern issues raised for late bills.
type DelayedBillingDetail struct {
	DelayHours float64   `json:"delay_hours"`
	EMRDate    time.Time `json:"emr_date"`
	BillDate   time.Time `json:"bill_date"`
}

// StatisticalDetail accompanies unusual-pattern issues raised by the model.
type StatisticalDetail struct {
	Index      int                `json:"index"`
	Confidence float64            `json:"confidence"`
	Features   map[string]float64 `json:"features"`
}

func (UnbilledServiceDetail) issueDetail()  {}
func (UnbilledMedicineDetail) issueDetail() {}
func (UnbilledTestDetail) issueDetail()     {}
func (PriceMismatchDetail) issueDetail()    {}
func (DuplicateBillingDetail) issueDetail() {}
func (DelayedBillingDetail) issueDetail()   {}
func (StatisticalDetail) issueDetail()      {}
