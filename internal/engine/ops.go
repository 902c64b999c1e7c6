package engine

import (
	"context"
	"time"

	"github.com/sktmbtkr01/his-quasar-production/internal/features"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
	"github.com/sktmbtkr01/his-quasar-production/internal/parquetio"
)

// Version is reported by Health.
const Version = "1.0.0"

// Health is the service status snapshot.
type Health struct {
	Service    string            `json:"service"`
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// Health pings the database and reports the model state.
func (e *Engine) Health(ctx context.Context) Health {
	h := Health{
		Service:    "revenue-leakage-detection",
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		Version:    Version,
		Components: map[string]string{"database": "unknown", "model": "not_trained"},
	}
	if e.pinger != nil {
		if err := e.pinger.Ping(ctx); err != nil {
			h.Components["database"] = "error: " + err.Error()
			h.Status = "degraded"
		} else {
			h.Components["database"] = "connected"
		}
	}
	if e.Detector.IsTrained() {
		h.Components["model"] = "trained"
	}
	return h
}

// Dashboard returns alert statistics with the current model info attached.
func (e *Engine) Dashboard(ctx context.Context) (*model.DashboardStats, error) {
	stats, err := e.Alerts.DashboardStats(ctx)
	if err != nil {
		return nil, err
	}
	info := e.Detector.Info()
	stats.ModelInfo = &info
	return stats, nil
}

// ExportFeatures writes the visit features of the last days days to path.
// days <= 0 exports the training lookback window.
func (e *Engine) ExportFeatures(ctx context.Context, days int, path string) (int, error) {
	var (
		ds  *features.Dataset
		err error
	)
	if days > 0 {
		ds, err = e.Processor.DetectionData(ctx, days)
	} else {
		ds, err = e.Processor.TrainingData(ctx)
	}
	if err != nil {
		return 0, err
	}
	if ds.Empty() {
		return 0, model.ErrEmptyData
	}
	if err := parquetio.WriteFeatures(path, ds.Visits); err != nil {
		return 0, err
	}
	e.log.Info().Str("path", path).Int("rows", len(ds.Visits)).Msg("exported features")
	return len(ds.Visits), nil
}
