// Package alerts turns merged issues into persisted alerts and serves the
// alert review lifecycle.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sktmbtkr01/his-quasar-production/internal/config"
	"github.com/sktmbtkr01/his-quasar-production/internal/metrics"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
	"github.com/sktmbtkr01/his-quasar-production/internal/normalize"
)

// DefaultListLimit caps Alerts when the filter sets no limit.
const DefaultListLimit = 100

// RecentWindow is the trailing window counted as recent on the dashboard.
const RecentWindow = 7 * 24 * time.Hour

// Group keys accepted by Store.AlertGroups.
const (
	GroupByStatus = "status"
	GroupByType   = "type"
)

// Store persists alerts.
type Store interface {
	InsertAlert(ctx context.Context, a *model.Alert) error
	// ListAlerts returns alerts newest detection first.
	ListAlerts(ctx context.Context, f model.AlertFilter) ([]model.Alert, error)
	// GetAlert returns model.ErrAlertNotFound for an unknown id.
	GetAlert(ctx context.Context, id string) (*model.Alert, error)
	// UpdateAlertStatus reports whether a row was changed.
	UpdateAlertStatus(ctx context.Context, id string, u model.StatusUpdate, at time.Time) (bool, error)
	AlertGroups(ctx context.Context, by string) ([]model.GroupStat, error)
	CountAlertsSince(ctx context.Context, since time.Time) (int64, error)
}

// Notifier fans created alerts out to an external channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alerts []model.Alert) error
}

// Generator owns alert creation and the status lifecycle.
type Generator struct {
	store     Store
	notifiers []Notifier
	th        PriorityThresholds
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// New creates a Generator.
func New(store Store, th PriorityThresholds, m *metrics.Metrics, log zerolog.Logger, notifiers ...Notifier) *Generator {
	return &Generator{
		store:     store,
		notifiers: notifiers,
		th:        th,
		metrics:   m,
		log:       log.With().Str("component", "alerts").Logger(),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// ThresholdsFromConfig maps the priority amounts of cfg.
func ThresholdsFromConfig(cfg *config.Config) PriorityThresholds {
	return PriorityThresholds{
		High:     cfg.Thresholds.HighPriorityAmount,
		Critical: cfg.Thresholds.CriticalPriorityAmount,
	}
}

// Priority tiers an issue with the generator's thresholds.
func (g *Generator) Priority(is *model.Issue) model.Priority { return g.th.Priority(is) }

// Combine merges and orders issues with the generator's thresholds.
func (g *Generator) Combine(ml, rules []model.Issue) []model.Issue {
	out := g.th.Combine(ml, rules)
	g.log.Info().
		Int("ml", len(ml)).
		Int("rules", len(rules)).
		Int("unique", len(out)).
		Msg("combined issues")
	return out
}

func (g *Generator) newAlert(is *model.Issue) model.Alert {
	now := g.now().UTC()
	src := is.Source
	if src == "" {
		src = model.SourceML
	}
	typ := is.Type
	if typ == "" {
		typ = model.IssueUnusualPattern
	}
	sev := is.Severity
	if sev == "" {
		sev = model.SeverityMedium
	}
	meta := model.AlertMetadata{BillID: is.BillID, Severity: sev}
	switch d := is.Detail.(type) {
	case model.UnbilledTestDetail:
		meta.TestID = d.TestID
	case model.UnbilledMedicineDetail:
		meta.PrescriptionID = d.PrescriptionID
	}
	return model.Alert{
		ID:            g.newID(),
		AnomalyType:   typ,
		DetectionDate: now,
		PatientID:     is.PatientID,
		VisitID:       is.VisitID,
		Description:   is.Description,
		Details: model.AlertDetails{
			Service:         is.Service,
			ExpectedRevenue: is.ExpectedRevenue,
			ActualRevenue:   is.ActualRevenue,
			LeakageAmount:   is.LeakageAmount,
		},
		Status:       model.StatusDetected,
		AnomalyScore: is.AnomalyScore,
		Priority:     g.th.Priority(is),
		Source:       src,
		Metadata:     meta,
		CreatedAt:    now,
	}
}

func (g *Generator) insert(ctx context.Context, is *model.Issue) (*model.Alert, error) {
	a := g.newAlert(is)
	if err := g.store.InsertAlert(ctx, &a); err != nil {
		g.metrics.AlertsFailed.Inc()
		g.log.Error().Err(err).Str("type", string(is.Type)).Str("visit", is.VisitID).Msg("create alert failed")
		return nil, fmt.Errorf("%w: insert alert: %w", model.ErrPersistenceFailure, err)
	}
	g.metrics.AlertsCreated.WithLabelValues(a.Priority.String()).Inc()
	g.log.Debug().Str("alert_id", a.ID).Str("type", string(a.AnomalyType)).Msg("created alert")
	return &a, nil
}

// CreateAlert persists one issue as a detected alert and returns its id.
func (g *Generator) CreateAlert(ctx context.Context, is model.Issue) (string, error) {
	a, err := g.insert(ctx, &is)
	if err != nil {
		return "", err
	}
	g.notify(ctx, []model.Alert{*a})
	return a.ID, nil
}

// CreateAlertsBatch persists every issue, continuing past failures.
func (g *Generator) CreateAlertsBatch(ctx context.Context, issues []model.Issue) model.BatchResult {
	res := model.BatchResult{Total: len(issues), AlertIDs: []string{}}
	created := make([]model.Alert, 0, len(issues))
	for i := range issues {
		a, err := g.insert(ctx, &issues[i])
		if err != nil {
			res.Failed++
			continue
		}
		created = append(created, *a)
		res.AlertIDs = append(res.AlertIDs, a.ID)
	}
	res.Created = len(created)
	g.log.Info().Int("created", res.Created).Int("failed", res.Failed).Msg("batch alert creation")
	g.notify(ctx, created)
	return res
}

// notify never fails the caller; notifier errors are logged and counted.
func (g *Generator) notify(ctx context.Context, created []model.Alert) {
	if len(created) == 0 {
		return
	}
	for _, n := range g.notifiers {
		if err := n.Notify(ctx, created); err != nil {
			g.metrics.NotifyFailures.WithLabelValues(n.Name()).Inc()
			g.log.Warn().Err(err).Str("notifier", n.Name()).Msg("alert notification failed")
		}
	}
}

// Alerts lists alerts matching f, newest detection first.
func (g *Generator) Alerts(ctx context.Context, f model.AlertFilter) ([]model.Alert, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	out, err := g.store.ListAlerts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return out, nil
}

// Alert returns one alert or model.ErrAlertNotFound.
func (g *Generator) Alert(ctx context.Context, id string) (*model.Alert, error) {
	a, err := g.store.GetAlert(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrAlertNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	return a, nil
}

// UpdateStatus is the only mutation of an existing alert. reviewedAt is
// always stamped; reviewer and notes only when provided.
func (g *Generator) UpdateStatus(ctx context.Context, id string, u model.StatusUpdate) error {
	if _, ok := model.ParseAlertStatus(string(u.Status)); !ok {
		return fmt.Errorf("%w: %q", model.ErrInvalidStatus, u.Status)
	}
	if u.ReviewedBy != nil && *u.ReviewedBy == "" {
		u.ReviewedBy = nil
	}
	if u.Notes != nil && *u.Notes == "" {
		u.Notes = nil
	}
	ok, err := g.store.UpdateAlertStatus(ctx, id, u, g.now().UTC())
	if err != nil {
		return fmt.Errorf("%w: update alert %s: %w", model.ErrPersistenceFailure, id, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrAlertNotFound, id)
	}
	g.log.Info().Str("alert_id", id).Str("status", string(u.Status)).Msg("alert status updated")
	return nil
}

// DashboardStats aggregates the alert store.
func (g *Generator) DashboardStats(ctx context.Context) (*model.DashboardStats, error) {
	byStatus, err := g.store.AlertGroups(ctx, GroupByStatus)
	if err != nil {
		return nil, fmt.Errorf("group alerts by status: %w", err)
	}
	byType, err := g.store.AlertGroups(ctx, GroupByType)
	if err != nil {
		return nil, fmt.Errorf("group alerts by type: %w", err)
	}
	recent, err := g.store.CountAlertsSince(ctx, g.now().Add(-RecentWindow))
	if err != nil {
		return nil, fmt.Errorf("count recent alerts: %w", err)
	}

	stats := &model.DashboardStats{
		RecentAlerts: recent,
		ByStatus:     make(map[string]model.GroupStat, len(byStatus)),
		ByType:       make(map[string]model.GroupStat, len(byType)),
	}
	leakage := make([]float64, 0, len(byStatus))
	for _, s := range byStatus {
		stats.ByStatus[s.Key] = s
		stats.TotalDetected += s.Count
		leakage = append(leakage, s.TotalLeakage)
		switch model.AlertStatus(s.Key) {
		case model.StatusDetected:
			stats.PendingReview = s.Count
		case model.StatusResolved:
			stats.Resolved = s.Count
		}
	}
	stats.TotalLeakageAmount = normalize.SumMoney(leakage...)
	for _, s := range byType {
		stats.ByType[s.Key] = s
	}
	return stats, nil
}
