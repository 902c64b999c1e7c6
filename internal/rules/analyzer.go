// Package rules implements the deterministic billing-integrity checks.
// Each check cross-references one clinical collection against billings
// and the tariff master.
package rules

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sktmbtkr01/his-quasar-production/internal/config"
	"github.com/sktmbtkr01/his-quasar-production/internal/features"
	"github.com/sktmbtkr01/his-quasar-production/internal/metrics"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

// Source is the HIS read surface the analyzer needs.
type Source interface {
	features.Source
	// BillingsByVisit returns the earliest-created bill of each visit,
	// regardless of date. Visits without a bill are absent from the map.
	BillingsByVisit(ctx context.Context, visitIDs []string) (map[string]model.Billing, error)
}

// Thresholds are the rule parameters.
type Thresholds struct {
	MinLeakage           float64
	PriceVariancePercent float64
	BillingDelayHours    float64
	ConsultationRate     float64
	LabRate              float64
	RadiologyRate        float64
}

// ThresholdsFromConfig maps the thresholds section of cfg.
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	t := cfg.Thresholds
	return Thresholds{
		MinLeakage:           t.MinLeakageAmount,
		PriceVariancePercent: t.PriceVariancePercent,
		BillingDelayHours:    t.BillingDelayHours,
		ConsultationRate:     t.ConsultationRate,
		LabRate:              t.LabRate,
		RadiologyRate:        t.RadiologyRate,
	}
}

// Analyzer runs the rule detectors. The tariff table is read-only during a
// pass and replaced wholesale by RefreshTariffs.
type Analyzer struct {
	src     Source
	th      Thresholds
	tariffs atomic.Pointer[model.TariffTable]
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// New creates an Analyzer and loads the tariff table. A tariff failure is
// logged and leaves the table empty, so tariff-priced rules use fallbacks.
func New(ctx context.Context, src Source, th Thresholds, m *metrics.Metrics, log zerolog.Logger) *Analyzer {
	a := &Analyzer{
		src:     src,
		th:      th,
		metrics: m,
		log:     log.With().Str("component", "rules").Logger(),
		now:     time.Now,
	}
	empty := model.TariffTable{}
	a.tariffs.Store(&empty)
	if err := a.RefreshTariffs(ctx); err != nil {
		a.log.Error().Err(err).Msg("load tariffs failed; using empty tariff table")
	}
	return a
}

// RefreshTariffs reloads the tariff master and swaps it in.
func (a *Analyzer) RefreshTariffs(ctx context.Context) error {
	rows, err := a.src.Tariffs(ctx)
	if err != nil {
		a.metrics.SourceFetchErrors.WithLabelValues("tariffs").Inc()
		return fmt.Errorf("%w: load tariffs: %w", model.ErrSourceUnavailable, err)
	}
	table := model.BuildTariffTable(rows)
	a.tariffs.Store(&table)
	a.log.Info().Int("tariffs", len(table)).Msg("loaded tariff table")
	return nil
}

// Tariffs returns the current tariff table. Callers must not modify it.
func (a *Analyzer) Tariffs() model.TariffTable {
	return *a.tariffs.Load()
}

// Window returns the lookback window of days ending now.
func (a *Analyzer) Window(days int) model.Window {
	return model.LookbackWindow(a.now(), days)
}

type detectorFunc func(ctx context.Context, w model.Window) ([]model.Issue, error)

type namedDetector struct {
	name string
	run  detectorFunc
}

func (a *Analyzer) detectors() []namedDetector {
	return []namedDetector{
		{"unbilled_services", a.UnbilledServices},
		{"unbilled_medicines", a.UnbilledMedicines},
		{"unbilled_lab_tests", a.UnbilledLabTests},
		{"unbilled_radiology_tests", a.UnbilledRadiologyTests},
		{"price_mismatches", a.PriceMismatches},
		{"duplicate_billings", a.DuplicateBillings},
		{"delayed_billings", a.DelayedBillings},
	}
}

// AnalyzeAll runs every detector over the last days days. Detectors are
// isolated: a failing or panicking detector contributes no issues and its
// error is joined into the returned error, while the others' issues are
// still returned in detector order.
func (a *Analyzer) AnalyzeAll(ctx context.Context, days int) ([]model.Issue, error) {
	w := a.Window(days)
	dets := a.detectors()
	results := make([][]model.Issue, len(dets))
	errs := make([]error, len(dets))

	var g errgroup.Group
	for i, d := range dets {
		g.Go(func() error {
			results[i], errs[i] = a.runDetector(ctx, d, w)
			return nil
		})
	}
	_ = g.Wait()

	var all []model.Issue
	for i, d := range dets {
		if errs[i] != nil {
			a.metrics.RuleFailures.WithLabelValues(d.name).Inc()
			a.log.Error().Err(errs[i]).Str("rule", d.name).Msg("rule detector failed")
			continue
		}
		a.metrics.RuleIssues.WithLabelValues(d.name).Add(float64(len(results[i])))
		all = append(all, results[i]...)
	}
	if all == nil {
		all = []model.Issue{}
	}
	a.log.Info().Int("issues", len(all)).Int("days", days).Msg("rule analysis complete")
	return all, errors.Join(errs...)
}

func (a *Analyzer) runDetector(ctx context.Context, d namedDetector, w model.Window) (issues []model.Issue, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error().Str("rule", d.name).Bytes("stack", debug.Stack()).Msg("rule detector panicked")
			issues, err = nil, fmt.Errorf("rule %s panicked: %v", d.name, r)
		}
	}()
	issues, err = d.run(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", d.name, err)
	}
	a.log.Debug().Str("rule", d.name).Int("issues", len(issues)).Msg("rule detector finished")
	return issues, nil
}

// billingsFor resolves the bill of each distinct visit id.
func (a *Analyzer) billingsFor(ctx context.Context, visitIDs []string) (map[string]model.Billing, error) {
	seen := make(map[string]bool, len(visitIDs))
	ids := make([]string, 0, len(visitIDs))
	for _, id := range visitIDs {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return map[string]model.Billing{}, nil
	}
	bills, err := a.src.BillingsByVisit(ctx, ids)
	if err != nil {
		a.metrics.SourceFetchErrors.WithLabelValues("billings").Inc()
		return nil, fmt.Errorf("%w: billings by visit: %w", model.ErrSourceUnavailable, err)
	}
	return bills, nil
}

func (a *Analyzer) fetchErr(collection string, err error) error {
	a.metrics.SourceFetchErrors.WithLabelValues(collection).Inc()
	return fmt.Errorf("%w: fetch %s: %w", model.ErrSourceUnavailable, collection, err)
}
