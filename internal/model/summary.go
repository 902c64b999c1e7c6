package model

import "time"

// ModelInfo describes the current anomaly model.
type ModelInfo struct {
	IsTrained              bool       `json:"is_trained"`
	Message                string     `json:"message,omitempty"`
	ModelType              string     `json:"model_type,omitempty"`
	NEstimators            int        `json:"n_estimators,omitempty"`
	Contamination          float64    `json:"contamination,omitempty"`
	HasNormalizationParams bool       `json:"has_normalization_params"`
	ArtifactLocation       string     `json:"model_path,omitempty"`
	ArtifactDigest         string     `json:"artifact_sha256,omitempty"`
	TrainedAt              *time.Time `json:"trained_at,omitempty"`
}

// SinglePrediction is the result of scoring one feature vector.
type SinglePrediction struct {
	IsAnomaly    bool    `json:"is_anomaly"`
	AnomalyScore float64 `json:"anomaly_score"`
	Threshold    float64 `json:"threshold"`
	Confidence   float64 `json:"confidence"`
}

// TrainingMetrics are the diagnostics computed over the training set.
type TrainingMetrics struct {
	NSamples           int      `json:"n_samples"`
	NFeatures          int      `json:"n_features"`
	NAnomaliesDetected int      `json:"n_anomalies_detected"`
	AnomalyRate        float64  `json:"anomaly_rate"`
	ScoreMean          float64  `json:"score_mean"`
	ScoreStd           float64  `json:"score_std"`
	ScoreMin           float64  `json:"score_min"`
	ScoreMax           float64  `json:"score_max"`
	Offset             float64  `json:"offset"`
	Warnings           []string `json:"warnings,omitempty"`
}

// DataStats summarises the raw training matrix.
type DataStats struct {
	NSamples  int     `json:"n_samples"`
	NFeatures int     `json:"n_features"`
	NaNCount  int     `json:"nan_count"`
	Mean      float64 `json:"mean"`
	Std       float64 `json:"std"`
}

// DataValidation is the outcome of the pre-fit data quality gate.
type DataValidation struct {
	Valid  bool      `json:"valid"`
	Error  string    `json:"error,omitempty"`
	Issues []string  `json:"issues"`
	Stats  DataStats `json:"stats"`
}

// ScoreDistribution summarises anomaly scores.
type ScoreDistribution struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Median float64 `json:"median"`
}

// ModelValidation is the post-fit self-consistency check.
type ModelValidation struct {
	Valid             bool              `json:"valid"`
	Error             string            `json:"error,omitempty"`
	NAnomalies        int               `json:"n_anomalies"`
	NNormal           int               `json:"n_normal"`
	AnomalyRate       float64           `json:"anomaly_rate"`
	ExpectedRate      float64           `json:"expected_rate"`
	RateDeviation     float64           `json:"rate_deviation"`
	WithinTolerance   bool              `json:"within_tolerance"`
	ScoreDistribution ScoreDistribution `json:"score_distribution"`
}

// DateRange is the span of bill dates in a training set.
type DateRange struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// DataSummary describes the data a model was trained on.
type DataSummary struct {
	NSamples  int       `json:"n_samples"`
	NFeatures int       `json:"n_features"`
	DateRange DateRange `json:"date_range"`
}

// TrainingReport is returned by every training run, including failed ones.
type TrainingReport struct {
	RunID          string           `json:"run_id,omitempty"`
	Success        bool             `json:"success"`
	Retrained      bool             `json:"retrained"`
	Message        string           `json:"message"`
	Stage          string           `json:"stage"`
	ErrorCode      string           `json:"error_code,omitempty"`
	Error          string           `json:"error,omitempty"`
	Duration       time.Duration    `json:"duration_ns"`
	Metrics        *TrainingMetrics `json:"training_metrics,omitempty"`
	DataValidation *DataValidation  `json:"data_validation,omitempty"`
	Validation     *ModelValidation `json:"validation_results,omitempty"`
	ModelInfo      ModelInfo        `json:"model_info"`
	DataSummary    *DataSummary     `json:"data_summary,omitempty"`
	SnapshotPath   string           `json:"snapshot_path,omitempty"`
}

// TrainingRecord is one entry of the persisted training history.
type TrainingRecord struct {
	RunID      string           `json:"run_id"`
	Timestamp  time.Time        `json:"timestamp"`
	Duration   time.Duration    `json:"duration_ns"`
	NSamples   int              `json:"n_samples"`
	NFeatures  int              `json:"n_features"`
	Metrics    TrainingMetrics  `json:"metrics"`
	Validation *ModelValidation `json:"validation,omitempty"`
}

// TrainingStatus reports the trainer's view of the current model.
type TrainingStatus struct {
	ModelTrained  bool            `json:"model_trained"`
	ModelExists   bool            `json:"model_exists"`
	ModelPath     string          `json:"model_path"`
	ModelInfo     ModelInfo       `json:"model_info"`
	LastTraining  *TrainingRecord `json:"last_training"`
	NEstimators   int             `json:"n_estimators"`
	Contamination float64         `json:"contamination"`
	LookbackDays  int             `json:"lookback_days"`
}

// ScanParameters echoes the options of a detection run.
type ScanParameters struct {
	Days         int  `json:"days"`
	IncludeML    bool `json:"include_ml"`
	IncludeRules bool `json:"include_rules"`
	CreateAlerts bool `json:"create_alerts"`
}

// TypeSummary aggregates issues of one type.
type TypeSummary struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// DetectionSummary aggregates a detection run.
type DetectionSummary struct {
	TotalAnomalies     int                       `json:"total_anomalies"`
	MLAnomalies        int                       `json:"ml_anomalies"`
	RuleAnomalies      int                       `json:"rule_anomalies"`
	TotalLeakageAmount float64                   `json:"total_leakage_amount"`
	ByType             map[IssueType]TypeSummary `json:"by_type"`
}

// DetectionReport is the result of one detection run.
type DetectionReport struct {
	ScanParameters ScanParameters   `json:"scan_parameters"`
	Summary        DetectionSummary `json:"summary"`
	AlertsCreated  int              `json:"alerts_created"`
	AlertsFailed   int              `json:"alerts_failed"`
	AlertIDs       []string         `json:"alert_ids,omitempty"`
	Anomalies      []Issue          `json:"anomalies"`
	Warnings       []string         `json:"warnings,omitempty"`
	Duration       time.Duration    `json:"duration_ns"`
}
