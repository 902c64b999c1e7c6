package features

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

// Source reads HIS documents for a time window. Implementations return an
// empty slice, not an error, when nothing matches.
type Source interface {
	// Billings returns bills whose billDate falls inside w.
	Billings(ctx context.Context, w model.Window) ([]model.Billing, error)
	// Prescriptions returns dispensed prescriptions created inside w.
	Prescriptions(ctx context.Context, w model.Window) ([]model.Prescription, error)
	// ClinicalTests returns completed tests of kind created inside w.
	ClinicalTests(ctx context.Context, kind model.TestKind, w model.Window) ([]model.ClinicalTest, error)
	// EMREvents returns encounters dated inside w.
	EMREvents(ctx context.Context, w model.Window) ([]model.EMREvent, error)
	// Tariffs returns the full tariff master.
	Tariffs(ctx context.Context) ([]model.Tariff, error)
}

// Dataset is the output of a feature pipeline. Features holds raw,
// unnormalized rows aligned index-for-index with Visits.
type Dataset struct {
	Features model.FeatureMatrix
	Visits   []model.VisitFeatureRecord
	Window   model.Window
}

// Empty reports whether the dataset has no rows.
func (d *Dataset) Empty() bool { return d.Features.Empty() }

// Processor turns HIS documents into model-ready feature matrices.
type Processor struct {
	src          Source
	lookbackDays int
	log          zerolog.Logger
	now          func() time.Time
}

// NewProcessor creates a Processor. lookbackDays is the window used when a
// fetch is called with a zero Window.
func NewProcessor(src Source, lookbackDays int, log zerolog.Logger) *Processor {
	return &Processor{
		src:          src,
		lookbackDays: lookbackDays,
		log:          log.With().Str("component", "features").Logger(),
		now:          time.Now,
	}
}

func (p *Processor) window(w model.Window) model.Window {
	if w.IsZero() {
		return model.LookbackWindow(p.now(), p.lookbackDays)
	}
	return w
}

func (p *Processor) sourceErr(what string, w model.Window, err error) error {
	p.log.Error().Err(err).
		Str("collection", what).
		Time("from", w.From).
		Time("to", w.To).
		Msg("fetch failed")
	return fmt.Errorf("%w: fetch %s: %w", model.ErrSourceUnavailable, what, err)
}

// FetchBillings returns bills inside w (lookback window when w is zero).
func (p *Processor) FetchBillings(ctx context.Context, w model.Window) ([]model.Billing, error) {
	w = p.window(w)
	rows, err := p.src.Billings(ctx, w)
	if err != nil {
		return []model.Billing{}, p.sourceErr("billings", w, err)
	}
	p.log.Debug().Int("rows", len(rows)).Msg("fetched billings")
	return nonNil(rows), nil
}

// FetchPrescriptions returns dispensed prescriptions inside w.
func (p *Processor) FetchPrescriptions(ctx context.Context, w model.Window) ([]model.Prescription, error) {
	w = p.window(w)
	rows, err := p.src.Prescriptions(ctx, w)
	if err != nil {
		return []model.Prescription{}, p.sourceErr("prescriptions", w, err)
	}
	return nonNil(rows), nil
}

// FetchLabTests returns completed lab tests inside w.
func (p *Processor) FetchLabTests(ctx context.Context, w model.Window) ([]model.ClinicalTest, error) {
	return p.fetchTests(ctx, model.TestLab, w)
}

// FetchRadiologyTests returns completed radiology tests inside w.
func (p *Processor) FetchRadiologyTests(ctx context.Context, w model.Window) ([]model.ClinicalTest, error) {
	return p.fetchTests(ctx, model.TestRadiology, w)
}

func (p *Processor) fetchTests(ctx context.Context, kind model.TestKind, w model.Window) ([]model.ClinicalTest, error) {
	w = p.window(w)
	rows, err := p.src.ClinicalTests(ctx, kind, w)
	if err != nil {
		return []model.ClinicalTest{}, p.sourceErr(string(kind)+"_tests", w, err)
	}
	return nonNil(rows), nil
}

// FetchEMREvents returns EMR encounters inside w.
func (p *Processor) FetchEMREvents(ctx context.Context, w model.Window) ([]model.EMREvent, error) {
	w = p.window(w)
	rows, err := p.src.EMREvents(ctx, w)
	if err != nil {
		return []model.EMREvent{}, p.sourceErr("emr", w, err)
	}
	return nonNil(rows), nil
}

// FetchTariffs returns the code → rate table. A failing source yields an
// empty table alongside the error.
func (p *Processor) FetchTariffs(ctx context.Context) (model.TariffTable, error) {
	rows, err := p.src.Tariffs(ctx)
	if err != nil {
		p.log.Error().Err(err).Str("collection", "tariffs").Msg("fetch failed")
		return model.TariffTable{}, fmt.Errorf("%w: fetch tariffs: %w", model.ErrSourceUnavailable, err)
	}
	return model.BuildTariffTable(rows), nil
}

// TrainingData runs fetch → prepare → extract over the configured lookback.
func (p *Processor) TrainingData(ctx context.Context) (*Dataset, error) {
	w := model.LookbackWindow(p.now(), p.lookbackDays)
	p.log.Info().Int("lookback_days", p.lookbackDays).Msg("preparing training data")
	return p.dataset(ctx, w)
}

// DetectionData runs the same pipeline over the last days days.
func (p *Processor) DetectionData(ctx context.Context, days int) (*Dataset, error) {
	w := model.LookbackWindow(p.now(), days)
	p.log.Info().
		Time("from", w.From).
		Time("to", w.To).
		Msg("preparing detection data")
	return p.dataset(ctx, w)
}

// dataset never returns partial results: on any failure the dataset is empty.
func (p *Processor) dataset(ctx context.Context, w model.Window) (*Dataset, error) {
	empty := &Dataset{Features: model.FeatureMatrix{}, Visits: []model.VisitFeatureRecord{}, Window: w}

	billings, err := p.FetchBillings(ctx, w)
	if err != nil {
		return empty, err
	}
	if len(billings) == 0 {
		p.log.Warn().Msg("no billing data in window")
		return empty, nil
	}

	visits := PrepareVisitData(billings)
	if len(visits) == 0 {
		return empty, nil
	}

	features := ExtractFeatures(visits)
	p.log.Info().
		Int("samples", features.Rows()).
		Int("features", features.Cols()).
		Msg("prepared feature matrix")
	return &Dataset{Features: features, Visits: visits, Window: w}, nil
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
