package model

import "time"

// AlertStatus is the review state of a persisted alert.
type AlertStatus string

const (
	StatusDetected      AlertStatus = "detected"
	StatusUnderReview   AlertStatus = "under-review"
	StatusResolved      AlertStatus = "resolved"
	StatusFalsePositive AlertStatus = "false-positive"
)

// AllAlertStatuses lists the valid statuses in lifecycle order.
var AllAlertStatuses = []AlertStatus{
	StatusDetected,
	StatusUnderReview,
	StatusResolved,
	StatusFalsePositive,
}

// ParseAlertStatus returns the status for name, or ok=false.
func ParseAlertStatus(name string) (AlertStatus, bool) {
	for _, s := range AllAlertStatuses {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}

// Priority is the unified 1-4 alert tier.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityMedium   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// AlertDetails holds the revenue figures of an alert.
type AlertDetails struct {
	Service         string  `json:"service"`
	ExpectedRevenue float64 `json:"expectedRevenue"`
	ActualRevenue   float64 `json:"actualRevenue"`
	LeakageAmount   float64 `json:"leakageAmount"`
}

// AlertMetadata links an alert back to the documents that raised it.
type AlertMetadata struct {
	BillID         string   `json:"bill_id,omitempty"`
	TestID         string   `json:"test_id,omitempty"`
	PrescriptionID string   `json:"prescription_id,omitempty"`
	Severity       Severity `json:"severity"`
}

// Alert is a persisted leakage finding in the ai_anomalies store.
type Alert struct {
	ID              string        `json:"id"`
	AnomalyType     IssueType     `json:"anomalyType"`
	DetectionDate   time.Time     `json:"detectionDate"`
	PatientID       string        `json:"patient,omitempty"`
	VisitID         string        `json:"visit,omitempty"`
	Description     string        `json:"description"`
	Details         AlertDetails  `json:"details"`
	Status          AlertStatus   `json:"status"`
	ReviewedBy      *string       `json:"reviewedBy"`
	ReviewedAt      *time.Time    `json:"reviewedAt"`
	ResolutionNotes *string       `json:"resolutionNotes"`
	AnomalyScore    float64       `json:"anomalyScore"`
	Priority        Priority      `json:"priority"`
	Source          Source        `json:"source"`
	Metadata        AlertMetadata `json:"metadata"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// AlertFilter narrows an alert listing. Empty fields match everything.
type AlertFilter struct {
	Status AlertStatus
	Type   IssueType
	Limit  int
}

// StatusUpdate is the only mutation allowed on an existing alert.
type StatusUpdate struct {
	Status     AlertStatus
	ReviewedBy *string
	Notes      *string
}

// GroupStat is a count and leakage sum for one group key.
type GroupStat struct {
	Key          string  `json:"_id"`
	Count        int64   `json:"count"`
	TotalLeakage float64 `json:"totalLeakage"`
}

// DashboardStats summarises the alert store.
type DashboardStats struct {
	TotalDetected      int64                `json:"totalDetected"`
	TotalLeakageAmount float64              `json:"totalLeakageAmount"`
	PendingReview      int64                `json:"pendingReview"`
	Resolved           int64                `json:"resolved"`
	RecentAlerts       int64                `json:"recentAlerts"`
	ByStatus           map[string]GroupStat `json:"byStatus"`
	ByType             map[string]GroupStat `json:"byType"`
	ModelInfo          *ModelInfo           `json:"model_info,omitempty"`
}

// BatchResult reports the outcome of a batch alert insert.
type BatchResult struct {
	Total    int      `json:"total"`
	Created  int      `json:"created"`
	Failed   int      `json:"failed"`
	AlertIDs []string `json:"alerts"`
}
