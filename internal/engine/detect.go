package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sktmbtkr01/his-quasar-production/internal/detector"
	"github.com/sktmbtkr01/his-quasar-production/internal/features"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
	"github.com/sktmbtkr01/his-quasar-production/internal/normalize"
)

// DetectOptions select the paths of a detection run.
type DetectOptions struct {
	Days         int
	IncludeML    bool
	IncludeRules bool
	CreateAlerts bool
}

// DefaultDetectOptions returns the configured detection defaults.
func (e *Engine) DefaultDetectOptions() DetectOptions {
	d := e.Config.Detection
	return DetectOptions{
		Days:         d.Days,
		IncludeML:    d.IncludeML,
		IncludeRules: d.IncludeRules,
		CreateAlerts: d.CreateAlerts,
	}
}

// Detect runs the ML and rule paths concurrently, merges their issues and
// optionally persists them as alerts. A failing path is reported in
// Warnings and does not stop the other; the error is non-nil only when
// every requested path failed.
func (e *Engine) Detect(ctx context.Context, opts DetectOptions) (*model.DetectionReport, error) {
	if opts.Days < 1 {
		return nil, fmt.Errorf("%w: days must be at least 1, got %d", model.ErrValidationFailure, opts.Days)
	}
	start := time.Now()
	e.log.Info().
		Int("days", opts.Days).
		Bool("ml", opts.IncludeML).
		Bool("rules", opts.IncludeRules).
		Msg("starting detection scan")

	var (
		mu       sync.Mutex
		warnings []string
		failed   []error
		ml       = []model.Issue{}
		ruleOut  = []model.Issue{}
	)
	warn := func(err error, fatal bool) {
		mu.Lock()
		defer mu.Unlock()
		warnings = append(warnings, err.Error())
		if fatal {
			failed = append(failed, err)
		}
	}

	var g errgroup.Group
	if opts.IncludeML {
		g.Go(func() error {
			issues, err := e.mlIssues(ctx, opts.Days)
			switch {
			case errors.Is(err, model.ErrModelNotTrained):
				e.log.Warn().Msg("ML model not trained, skipping ML detection")
				warn(fmt.Errorf("ml detection skipped: %w", err), false)
			case err != nil:
				e.log.Error().Err(err).Msg("ml detection failed")
				warn(fmt.Errorf("ml detection: %w", err), true)
			default:
				ml = issues
			}
			return nil
		})
	}
	if opts.IncludeRules {
		g.Go(func() error {
			issues, err := e.Analyzer.AnalyzeAll(ctx, opts.Days)
			ruleOut = issues
			if err != nil {
				warn(fmt.Errorf("rule detection: %w", err), len(issues) == 0)
			}
			return nil
		})
	}
	_ = g.Wait()

	combined := e.Alerts.Combine(ml, ruleOut)
	rep := &model.DetectionReport{
		ScanParameters: model.ScanParameters{
			Days:         opts.Days,
			IncludeML:    opts.IncludeML,
			IncludeRules: opts.IncludeRules,
			CreateAlerts: opts.CreateAlerts,
		},
		Summary: summarize(combined, len(ml), len(ruleOut)),
	}
	if opts.CreateAlerts && len(combined) > 0 {
		res := e.Alerts.CreateAlertsBatch(ctx, combined)
		rep.AlertsCreated = res.Created
		rep.AlertsFailed = res.Failed
		rep.AlertIDs = res.AlertIDs
		if res.Failed > 0 {
			warnings = append(warnings, fmt.Sprintf("%d of %d alerts could not be stored", res.Failed, res.Total))
		}
	}
	limit := min(e.Config.Detection.ResponseLimit, len(combined))
	rep.Anomalies = combined[:limit]
	rep.Warnings = warnings
	rep.Duration = time.Since(start)

	e.Metrics.MLAnomalies.Add(float64(len(ml)))
	e.Metrics.DetectionDuration.Observe(rep.Duration.Seconds())
	for typ, s := range rep.Summary.ByType {
		e.Metrics.LeakageAmount.WithLabelValues(string(typ)).Add(s.Amount)
	}

	e.log.Info().
		Int("anomalies", len(combined)).
		Int("ml", len(ml)).
		Int("rules", len(ruleOut)).
		Int("alerts_created", rep.AlertsCreated).
		Dur("elapsed", rep.Duration).
		Msg("detection scan complete")

	requested := 0
	if opts.IncludeML {
		requested++
	}
	if opts.IncludeRules {
		requested++
	}
	if requested > 0 && len(failed) == requested {
		return rep, errors.Join(failed...)
	}
	return rep, nil
}

// mlIssues scores the detection window and turns anomalous rows into
// unusual-pattern issues.
func (e *Engine) mlIssues(ctx context.Context, days int) ([]model.Issue, error) {
	if !e.Detector.IsTrained() {
		return nil, model.ErrModelNotTrained
	}
	ds, err := e.Processor.DetectionData(ctx, days)
	if err != nil {
		return nil, err
	}
	if ds.Empty() {
		return []model.Issue{}, nil
	}
	X := e.normalize(ds.Features)
	recs, err := e.Detector.AnomalyDetails(X, ds.Visits)
	if err != nil {
		return nil, err
	}
	issues := detector.Issues(recs)
	e.log.Info().Int("anomalies", len(issues)).Msg("ml detection complete")
	return issues, nil
}

// normalize recomputes batch statistics unless reuse of the stored
// training parameters is enabled and they fit the matrix.
func (e *Engine) normalize(X model.FeatureMatrix) model.FeatureMatrix {
	if e.Config.Detection.ReuseTrainingNormalization {
		if out, ok := features.ApplyNormalization(X, e.Detector.NormalizationParams()); ok {
			return out
		}
		e.log.Warn().Msg("stored normalization params unusable; normalizing on batch")
	}
	out, _ := features.NormalizeFeatures(X)
	return out
}

func summarize(issues []model.Issue, nML, nRules int) model.DetectionSummary {
	s := model.DetectionSummary{
		TotalAnomalies: len(issues),
		MLAnomalies:    nML,
		RuleAnomalies:  nRules,
		ByType:         map[model.IssueType]model.TypeSummary{},
	}
	amounts := map[model.IssueType][]float64{}
	for _, is := range issues {
		amounts[is.Type] = append(amounts[is.Type], is.LeakageAmount)
	}
	totals := make([]float64, 0, len(amounts))
	for typ, a := range amounts {
		t := model.TypeSummary{Count: len(a), Amount: normalize.SumMoney(a...)}
		s.ByType[typ] = t
		totals = append(totals, t.Amount)
	}
	s.TotalLeakageAmount = normalize.SumMoney(totals...)
	return s
}
