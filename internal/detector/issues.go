package detector

import (
	"fmt"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

// Issues converts anomaly records into unusual-pattern issues. The model
// does not price leakage, so LeakageAmount is 0 and the priority comes
// from severity alone.
func Issues(records []model.AnomalyRecord) []model.Issue {
	out := make([]model.Issue, 0, len(records))
	for _, r := range records {
		out = append(out, model.Issue{
			Type:            model.IssueUnusualPattern,
			VisitID:         r.VisitID,
			PatientID:       r.PatientID,
			BillID:          r.BillID,
			Description:     fmt.Sprintf("Statistical anomaly in billing pattern (score %.3f, confidence %.0f%%)", r.AnomalyScore, r.Confidence*100),
			Service:         "billing",
			ExpectedRevenue: r.Features[model.FeatTotalExpectedAmount],
			ActualRevenue:   r.Features[model.FeatTotalBilledAmount],
			LeakageAmount:   0,
			Severity:        model.SeverityMedium,
			Source:          model.SourceML,
			AnomalyScore:    r.AnomalyScore,
			Detail: model.StatisticalDetail{
				Index:      r.Index,
				Confidence: r.Confidence,
				Features:   r.Features,
			},
		})
	}
	return out
}
