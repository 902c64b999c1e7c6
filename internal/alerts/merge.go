package alerts

import (
	"cmp"
	"slices"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

// PriorityThresholds are the leakage amounts that force a priority tier.
type PriorityThresholds struct {
	High     float64
	Critical float64
}

// Priority tiers an issue. Amount thresholds take precedence over severity.
func (th PriorityThresholds) Priority(is *model.Issue) model.Priority {
	switch {
	case is.LeakageAmount >= th.Critical:
		return model.PriorityCritical
	case is.LeakageAmount >= th.High:
		return model.PriorityHigh
	case is.Severity == model.SeverityHigh:
		return model.PriorityHigh
	case is.Severity == model.SeverityMedium:
		return model.PriorityMedium
	}
	return model.PriorityLow
}

// Combine merges model and rule issues into one list with at most one issue
// per visit and type. Model issues are taken first and win collisions.
// The result is ordered by priority, then leakage, both descending; equal
// keys keep their input order.
func (th PriorityThresholds) Combine(ml, rules []model.Issue) []model.Issue {
	out := make([]model.Issue, 0, len(ml)+len(rules))
	seen := make(map[string]bool, len(ml)+len(rules))

	add := func(issues []model.Issue, src model.Source) {
		for _, is := range issues {
			k := is.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			is.Source = src
			out = append(out, is)
		}
	}
	add(ml, model.SourceML)
	add(rules, model.SourceRules)

	slices.SortStableFunc(out, func(a, b model.Issue) int {
		if c := cmp.Compare(th.Priority(&b), th.Priority(&a)); c != 0 {
			return c
		}
		return cmp.Compare(b.LeakageAmount, a.LeakageAmount)
	})
	return out
}
