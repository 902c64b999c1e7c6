package alerts

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sktmbtkr01/his-quasar-production/internal/metrics"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

type memStore struct {
	mu      sync.Mutex
	alerts  []model.Alert
	failFor map[string]bool // visit ids whose insert fails
}

func (s *memStore) InsertAlert(_ context.Context, a *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[a.VisitID] {
		return errors.New("write conflict")
	}
	s.alerts = append(s.alerts, *a)
	return nil
}

func (s *memStore) ListAlerts(_ context.Context, f model.AlertFilter) ([]model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Alert
	for _, a := range s.alerts {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Type != "" && a.AnomalyType != f.Type {
			continue
		}
		out = append(out, a)
	}
	slices.SortStableFunc(out, func(a, b model.Alert) int { return b.DetectionDate.Compare(a.DetectionDate) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) GetAlert(_ context.Context, id string) (*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			a := s.alerts[i]
			return &a, nil
		}
	}
	return nil, model.ErrAlertNotFound
}

func (s *memStore) UpdateAlertStatus(_ context.Context, id string, u model.StatusUpdate, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		a := &s.alerts[i]
		if a.ID != id {
			continue
		}
		a.Status = u.Status
		a.ReviewedAt = &at
		if u.ReviewedBy != nil {
			a.ReviewedBy = u.ReviewedBy
		}
		if u.Notes != nil {
			a.ResolutionNotes = u.Notes
		}
		return true, nil
	}
	return false, nil
}

func (s *memStore) AlertGroups(_ context.Context, by string) ([]model.GroupStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := map[string]*model.GroupStat{}
	var keys []string
	for _, a := range s.alerts {
		k := string(a.Status)
		if by == GroupByType {
			k = string(a.AnomalyType)
		}
		g, ok := groups[k]
		if !ok {
			g = &model.GroupStat{Key: k}
			groups[k] = g
			keys = append(keys, k)
		}
		g.Count++
		g.TotalLeakage += a.Details.LeakageAmount
	}
	out := make([]model.GroupStat, 0, len(keys))
	for _, k := range keys {
		out = append(out, *groups[k])
	}
	return out, nil
}

func (s *memStore) CountAlertsSince(_ context.Context, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.alerts {
		if !a.DetectionDate.Before(since) {
			n++
		}
	}
	return n, nil
}

type recordingNotifier struct {
	batches [][]model.Alert
	err     error
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Notify(_ context.Context, alerts []model.Alert) error {
	n.batches = append(n.batches, alerts)
	return n.err
}

var th = PriorityThresholds{High: 5000, Critical: 10000}

func newGenerator(store Store, notifiers ...Notifier) *Generator {
	g := New(store, th, metrics.New(), zerolog.Nop(), notifiers...)
	var seq int
	g.newID = func() string { seq++; return fmt.Sprintf("alert-%03d", seq) }
	return g
}

func TestPriority(t *testing.T) {
	cases := []struct {
		name    string
		leakage float64
		sev     model.Severity
		want    model.Priority
	}{
		{"critical at exact amount", 10000, model.SeverityLow, model.PriorityCritical},
		{"high by amount", 5000, model.SeverityLow, model.PriorityHigh},
		{"high by severity", 10, model.SeverityHigh, model.PriorityHigh},
		{"medium", 4999, model.SeverityMedium, model.PriorityMedium},
		{"low", 0, model.SeverityLow, model.PriorityLow},
		{"unset severity is low", 0, "", model.PriorityLow},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			is := model.Issue{LeakageAmount: c.leakage, Severity: c.sev}
			if got := th.Priority(&is); got != c.want {
				t.Errorf("Priority = %v, want %v", got, c.want)
			}
		})
	}
}

func TestCombine_DedupeKeepsML(t *testing.T) {
	ml := []model.Issue{
		{VisitID: "v1", Type: model.IssueUnusualPattern, Severity: model.SeverityMedium, Description: "ml"},
	}
	rules := []model.Issue{
		{VisitID: "v1", Type: model.IssueUnusualPattern, Severity: model.SeverityLow, Description: "delayed"},
		{VisitID: "v1", Type: model.IssueDuplicateBilling, Severity: model.SeverityHigh},
		{VisitID: "v1", Type: model.IssueDuplicateBilling, Severity: model.SeverityHigh},
		{VisitID: "v2", Type: model.IssueUnbilledService, LeakageAmount: 12000, Severity: model.SeverityHigh},
	}
	out := th.Combine(ml, rules)
	if len(out) != 3 {
		t.Fatalf("got %d issues, want 3", len(out))
	}
	keys := map[string]bool{}
	for _, is := range out {
		if keys[is.Key()] {
			t.Fatalf("duplicate key %s", is.Key())
		}
		keys[is.Key()] = true
		if is.VisitID == "v1" && is.Type == model.IssueUnusualPattern {
			if is.Description != "ml" || is.Source != model.SourceML {
				t.Errorf("collision should keep the ML issue, got %+v", is)
			}
		}
	}
	if out[0].VisitID != "v2" {
		t.Errorf("critical issue should sort first, got %+v", out[0])
	}
	if out[1].Type != model.IssueDuplicateBilling || out[1].Source != model.SourceRules {
		t.Errorf("high before medium, got %+v", out[1])
	}
}

func TestCombine_LeakageTieBreakAndStability(t *testing.T) {
	rules := []model.Issue{
		{VisitID: "a", Type: model.IssueUnbilledLab, LeakageAmount: 300, Severity: model.SeverityMedium},
		{VisitID: "b", Type: model.IssueUnbilledLab, LeakageAmount: 900, Severity: model.SeverityMedium},
		{VisitID: "c", Type: model.IssueUnbilledLab, LeakageAmount: 300, Severity: model.SeverityMedium},
	}
	out := th.Combine(nil, rules)
	got := []string{out[0].VisitID, out[1].VisitID, out[2].VisitID}
	if !slices.Equal(got, []string{"b", "a", "c"}) {
		t.Errorf("order = %v, want [b a c]", got)
	}
}

func TestCreateAlertsBatch_ToleratesFailures(t *testing.T) {
	store := &memStore{failFor: map[string]bool{"v2": true}}
	n := &recordingNotifier{err: errors.New("broker down")}
	g := newGenerator(store, n)

	issues := []model.Issue{
		{Type: model.IssueUnbilledLab, VisitID: "v1", PatientID: "p1", LeakageAmount: 300, Severity: model.SeverityMedium,
			Source: model.SourceRules, Detail: model.UnbilledTestDetail{TestID: "t1", Kind: model.TestLab}},
		{Type: model.IssueUnbilledService, VisitID: "v2", LeakageAmount: 500, Severity: model.SeverityHigh},
		{Type: model.IssueUnbilledMedicine, VisitID: "v3", LeakageAmount: 20000, Severity: model.SeverityHigh,
			Source: model.SourceRules, Detail: model.UnbilledMedicineDetail{PrescriptionID: "rx9"}},
	}
	res := g.CreateAlertsBatch(context.Background(), issues)
	if res.Total != 3 || res.Created != 2 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	// ids are allocated before the insert, so the failed v2 consumes alert-002.
	if !slices.Equal(res.AlertIDs, []string{"alert-001", "alert-003"}) {
		t.Errorf("ids = %v", res.AlertIDs)
	}
	if len(n.batches) != 1 || len(n.batches[0]) != 2 {
		t.Errorf("notifier batches = %v", n.batches)
	}

	a := store.alerts[0]
	if a.Status != model.StatusDetected || a.Metadata.TestID != "t1" || a.Priority != model.PriorityMedium {
		t.Errorf("alert = %+v", a)
	}
	b := store.alerts[1]
	if b.Priority != model.PriorityCritical || b.Metadata.PrescriptionID != "rx9" {
		t.Errorf("alert = %+v", b)
	}
}

func TestCreateAlertsBatch_Empty(t *testing.T) {
	n := &recordingNotifier{}
	res := newGenerator(&memStore{}, n).CreateAlertsBatch(context.Background(), nil)
	if res.Total != 0 || res.Created != 0 || len(n.batches) != 0 {
		t.Errorf("empty batch = %+v, notified %d", res, len(n.batches))
	}
}

func TestCreateAlert_Defaults(t *testing.T) {
	store := &memStore{}
	g := newGenerator(store)
	id, err := g.CreateAlert(context.Background(), model.Issue{VisitID: "v1"})
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	a, err := g.Alert(context.Background(), id)
	if err != nil {
		t.Fatalf("Alert: %v", err)
	}
	if a.AnomalyType != model.IssueUnusualPattern || a.Source != model.SourceML || a.Metadata.Severity != model.SeverityMedium {
		t.Errorf("defaults not applied: %+v", a)
	}
}

func TestUpdateStatus(t *testing.T) {
	store := &memStore{}
	g := newGenerator(store)
	ctx := context.Background()
	id, err := g.CreateAlert(ctx, model.Issue{VisitID: "v1", Type: model.IssuePriceMismatch})
	if err != nil {
		t.Fatal(err)
	}

	reviewer := "auditor-7"
	empty := ""
	if err := g.UpdateStatus(ctx, id, model.StatusUpdate{Status: model.StatusUnderReview, ReviewedBy: &reviewer, Notes: &empty}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	a, _ := g.Alert(ctx, id)
	if a.Status != model.StatusUnderReview || a.ReviewedAt == nil || a.ReviewedBy == nil || *a.ReviewedBy != reviewer {
		t.Errorf("after review: %+v", a)
	}
	if a.ResolutionNotes != nil {
		t.Errorf("empty notes should not be written, got %q", *a.ResolutionNotes)
	}

	if err := g.UpdateStatus(ctx, id, model.StatusUpdate{Status: "archived"}); !errors.Is(err, model.ErrInvalidStatus) {
		t.Errorf("err = %v, want ErrInvalidStatus", err)
	}
	if err := g.UpdateStatus(ctx, "missing", model.StatusUpdate{Status: model.StatusResolved}); !errors.Is(err, model.ErrAlertNotFound) {
		t.Errorf("err = %v, want ErrAlertNotFound", err)
	}
	if _, err := g.Alert(ctx, "missing"); !errors.Is(err, model.ErrAlertNotFound) {
		t.Errorf("err = %v, want ErrAlertNotFound", err)
	}
}

func TestAlerts_FilterAndOrder(t *testing.T) {
	store := &memStore{}
	g := newGenerator(store)
	base := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	g.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Hour) }

	ctx := context.Background()
	for i, typ := range []model.IssueType{model.IssueUnbilledLab, model.IssuePriceMismatch, model.IssueUnbilledLab} {
		if _, err := g.CreateAlert(ctx, model.Issue{VisitID: fmt.Sprint("v", i), Type: typ}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := g.Alerts(ctx, model.AlertFilter{Type: model.IssueUnbilledLab})
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(got) != 2 || got[0].VisitID != "v2" {
		t.Errorf("want newest lab alert first, got %+v", got)
	}
	limited, _ := g.Alerts(ctx, model.AlertFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limit ignored: %d", len(limited))
	}
}

func TestDashboardStats(t *testing.T) {
	store := &memStore{}
	g := newGenerator(store)
	ctx := context.Background()
	now := time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC)

	g.now = func() time.Time { return now.AddDate(0, 0, -30) }
	old, _ := g.CreateAlert(ctx, model.Issue{VisitID: "v0", Type: model.IssueUnbilledLab, LeakageAmount: 300})
	g.now = func() time.Time { return now }
	g.CreateAlert(ctx, model.Issue{VisitID: "v1", Type: model.IssueUnbilledLab, LeakageAmount: 200})
	g.CreateAlert(ctx, model.Issue{VisitID: "v2", Type: model.IssuePriceMismatch, LeakageAmount: 1000})
	if err := g.UpdateStatus(ctx, old, model.StatusUpdate{Status: model.StatusResolved}); err != nil {
		t.Fatal(err)
	}

	stats, err := g.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("DashboardStats: %v", err)
	}
	if stats.TotalDetected != 3 || stats.TotalLeakageAmount != 1500 {
		t.Errorf("totals = %d / %v", stats.TotalDetected, stats.TotalLeakageAmount)
	}
	if stats.PendingReview != 2 || stats.Resolved != 1 || stats.RecentAlerts != 2 {
		t.Errorf("pending=%d resolved=%d recent=%d", stats.PendingReview, stats.Resolved, stats.RecentAlerts)
	}
	if lab := stats.ByType[string(model.IssueUnbilledLab)]; lab.Count != 2 || lab.TotalLeakage != 500 {
		t.Errorf("by type lab = %+v", lab)
	}
}
