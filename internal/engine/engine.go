// Package engine wires the leakage components into one context object that
// is built once per process and passed to every command.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sktmbtkr01/his-quasar-production/internal/alerts"
	"github.com/sktmbtkr01/his-quasar-production/internal/artifact"
	"github.com/sktmbtkr01/his-quasar-production/internal/config"
	"github.com/sktmbtkr01/his-quasar-production/internal/db"
	"github.com/sktmbtkr01/his-quasar-production/internal/detector"
	"github.com/sktmbtkr01/his-quasar-production/internal/features"
	"github.com/sktmbtkr01/his-quasar-production/internal/history"
	"github.com/sktmbtkr01/his-quasar-production/internal/logging"
	"github.com/sktmbtkr01/his-quasar-production/internal/metrics"
	"github.com/sktmbtkr01/his-quasar-production/internal/notify"
	"github.com/sktmbtkr01/his-quasar-production/internal/rules"
	"github.com/sktmbtkr01/his-quasar-production/internal/store"
	"github.com/sktmbtkr01/his-quasar-production/internal/trainer"
)

// SetupError names the dependency that could not be opened.
type SetupError struct {
	Component string
	Err       error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %s: %s", e.Component, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// Pinger checks connectivity to the source database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the external collaborators of an Engine.
type Deps struct {
	Source    rules.Source
	Alerts    alerts.Store
	Artifacts artifact.Store
	// History and Pinger may be nil.
	History   trainer.History
	Pinger    Pinger
	Notifiers []alerts.Notifier
	Metrics   *metrics.Metrics
}

// Engine holds every component for one process.
type Engine struct {
	Config    *config.Config
	Metrics   *metrics.Metrics
	Processor *features.Processor
	Detector  *detector.Detector
	Analyzer  *rules.Analyzer
	Alerts    *alerts.Generator
	Trainer   *trainer.Trainer
	// Store and History are set by Open only.
	Store   *store.Store
	History *history.Store

	pinger  Pinger
	closers []func() error
	log     zerolog.Logger
}

// Open connects to Postgres, the artifact store and the history database
// and builds an Engine over them.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	pool, err := db.NewPool(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		return nil, &SetupError{Component: "database", Err: err}
	}
	arts, err := artifact.Open(ctx, cfg.Artifacts, log)
	if err != nil {
		pool.Close()
		return nil, &SetupError{Component: "artifacts", Err: err}
	}
	hist, err := history.Open(cfg.Training.HistoryPath, cfg.Training.HistoryLimit)
	if err != nil {
		pool.Close()
		return nil, &SetupError{Component: "history", Err: err}
	}
	ns := notify.FromConfig(cfg.Notify, log)

	st := store.New(pool, cfg.Data.BatchSize, log)
	e := Build(ctx, cfg, Deps{
		Source:    st,
		Alerts:    st,
		Artifacts: arts,
		History:   hist,
		Pinger:    pool,
		Notifiers: ns.Notifiers,
		Metrics:   metrics.New(),
	}, log)
	e.Store = st
	e.History = hist
	e.closers = append(e.closers, ns.Close, hist.Close, func() error { pool.Close(); return nil })
	return e, nil
}

// Build assembles an Engine from already-open dependencies.
func Build(ctx context.Context, cfg *config.Config, d Deps, log zerolog.Logger) *Engine {
	m := d.Metrics
	if m == nil {
		m = metrics.New()
	}
	proc := features.NewProcessor(d.Source, cfg.Data.LookbackDays, log)
	det := detector.New(ctx, d.Artifacts, detector.OptionsFromConfig(cfg), log)
	analyzer := rules.New(ctx, d.Source, rules.ThresholdsFromConfig(cfg), m, log)
	gen := alerts.New(d.Alerts, alerts.ThresholdsFromConfig(cfg), m, log, d.Notifiers...)
	tr := trainer.New(proc, det, d.Artifacts, d.History, trainer.OptionsFromConfig(cfg), m, log)

	return &Engine{
		Config:    cfg,
		Metrics:   m,
		Processor: proc,
		Detector:  det,
		Analyzer:  analyzer,
		Alerts:    gen,
		Trainer:   tr,
		pinger:    d.Pinger,
		log:       logging.Component(log, "engine"),
	}
}

// Close releases connections in reverse order of opening.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// WriteMetrics writes the metrics textfile when a path is configured.
func (e *Engine) WriteMetrics() {
	path := e.Config.Metrics.TextfilePath
	if path == "" {
		return
	}
	if err := e.Metrics.WriteTextfile(path); err != nil {
		e.log.Warn().Err(err).Str("path", path).Msg("write metrics textfile failed")
	}
}
