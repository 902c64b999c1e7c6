package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// LEAKWATCH_THRESHOLDS_MIN_LEAKAGE_AMOUNT.
const EnvPrefix = "LEAKWATCH"

// Config holds all runtime configuration for a leakwatch run.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Model      ModelConfig      `mapstructure:"model" yaml:"model"`
	Data       DataConfig       `mapstructure:"data" yaml:"data"`
	Thresholds ThresholdConfig  `mapstructure:"thresholds" yaml:"thresholds"`
	Detection  DetectionConfig  `mapstructure:"detection" yaml:"detection"`
	Artifacts  ArtifactConfig   `mapstructure:"artifacts" yaml:"artifacts"`
	Training   TrainingConfig   `mapstructure:"training" yaml:"training"`
	Notify     NotifyConfig     `mapstructure:"notify" yaml:"notify"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// DatabaseConfig locates the HIS document store.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// ModelConfig holds isolation forest hyperparameters.
type ModelConfig struct {
	Name          string  `mapstructure:"name" yaml:"name"`
	NEstimators   int     `mapstructure:"n_estimators" yaml:"n_estimators"`
	Contamination float64 `mapstructure:"contamination" yaml:"contamination"`
	MaxSamples    int     `mapstructure:"max_samples" yaml:"max_samples"` // 0 = auto, min(256, n)
	MaxFeatures   float64 `mapstructure:"max_features" yaml:"max_features"`
	Bootstrap     bool    `mapstructure:"bootstrap" yaml:"bootstrap"`
	Jobs          int     `mapstructure:"jobs" yaml:"jobs"` // <= 0 = all cores
	RandomState   int64   `mapstructure:"random_state" yaml:"random_state"`
}

// DataConfig controls feature extraction windows.
type DataConfig struct {
	LookbackDays       int `mapstructure:"lookback_days" yaml:"lookback_days"`
	MinTrainingSamples int `mapstructure:"min_training_samples" yaml:"min_training_samples"`
	BatchSize          int `mapstructure:"batch_size" yaml:"batch_size"`
}

// ThresholdConfig holds alerting and rule thresholds. Amounts are in the
// hospital's billing currency.
type ThresholdConfig struct {
	AnomalyScore           float64 `mapstructure:"anomaly_score" yaml:"anomaly_score"`
	MinLeakageAmount       float64 `mapstructure:"min_leakage_amount" yaml:"min_leakage_amount"`
	HighPriorityAmount     float64 `mapstructure:"high_priority_amount" yaml:"high_priority_amount"`
	CriticalPriorityAmount float64 `mapstructure:"critical_priority_amount" yaml:"critical_priority_amount"`
	BillingDelayHours      float64 `mapstructure:"billing_delay_hours" yaml:"billing_delay_hours"`
	PriceVariancePercent   float64 `mapstructure:"price_variance_percent" yaml:"price_variance_percent"`
	ConsultationRate       float64 `mapstructure:"consultation_rate" yaml:"consultation_rate"`
	LabRate                float64 `mapstructure:"lab_rate" yaml:"lab_rate"`
	RadiologyRate          float64 `mapstructure:"radiology_rate" yaml:"radiology_rate"`
}

// DetectionConfig holds defaults for a detection run.
type DetectionConfig struct {
	Days                       int  `mapstructure:"days" yaml:"days"`
	IncludeML                  bool `mapstructure:"include_ml" yaml:"include_ml"`
	IncludeRules               bool `mapstructure:"include_rules" yaml:"include_rules"`
	CreateAlerts               bool `mapstructure:"create_alerts" yaml:"create_alerts"`
	ResponseLimit              int  `mapstructure:"response_limit" yaml:"response_limit"`
	ReuseTrainingNormalization bool `mapstructure:"reuse_training_normalization" yaml:"reuse_training_normalization"`
}

// ArtifactConfig selects where the fitted model is stored.
type ArtifactConfig struct {
	Backend string   `mapstructure:"backend" yaml:"backend"` // "file" or "s3"
	Dir     string   `mapstructure:"dir" yaml:"dir"`
	S3      S3Config `mapstructure:"s3" yaml:"s3"`
}

// S3Config configures an S3-compatible artifact bucket.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"-"`
	UseSSL          bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

// TrainingConfig controls the training pipeline outputs.
type TrainingConfig struct {
	HistoryPath      string  `mapstructure:"history_path" yaml:"history_path"`
	HistoryLimit     int     `mapstructure:"history_limit" yaml:"history_limit"`
	MaxRateDeviation float64 `mapstructure:"max_rate_deviation" yaml:"max_rate_deviation"`
	SnapshotDir      string  `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`
}

// NotifyConfig configures alert fan-out.
type NotifyConfig struct {
	Kafka    KafkaConfig    `mapstructure:"kafka" yaml:"kafka"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
}

// KafkaConfig publishes every created alert as a JSON event.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Brokers      []string      `mapstructure:"brokers" yaml:"brokers"`
	Topic        string        `mapstructure:"topic" yaml:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// TelegramConfig pushes high-priority alerts to a chat.
type TelegramConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	BotToken    string `mapstructure:"bot_token" yaml:"-"`
	ChatID      string `mapstructure:"chat_id" yaml:"chat_id"`
	MinPriority int    `mapstructure:"min_priority" yaml:"min_priority"`
	MaxRetries  int    `mapstructure:"max_retries" yaml:"max_retries"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus textfile written after each command.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
}

// Load reads configuration from defaults, an optional YAML file, and
// LEAKWATCH_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 8)

	v.SetDefault("model.name", "isolation_forest")
	v.SetDefault("model.n_estimators", 100)
	v.SetDefault("model.contamination", 0.1)
	v.SetDefault("model.max_samples", 0)
	v.SetDefault("model.max_features", 1.0)
	v.SetDefault("model.bootstrap", false)
	v.SetDefault("model.jobs", -1)
	v.SetDefault("model.random_state", 42)

	v.SetDefault("data.lookback_days", 90)
	v.SetDefault("data.min_training_samples", 100)
	v.SetDefault("data.batch_size", 1000)

	v.SetDefault("thresholds.anomaly_score", -0.5)
	v.SetDefault("thresholds.min_leakage_amount", 100.0)
	v.SetDefault("thresholds.high_priority_amount", 5000.0)
	v.SetDefault("thresholds.critical_priority_amount", 10000.0)
	v.SetDefault("thresholds.billing_delay_hours", 24.0)
	v.SetDefault("thresholds.price_variance_percent", 10.0)
	v.SetDefault("thresholds.consultation_rate", 500.0)
	v.SetDefault("thresholds.lab_rate", 300.0)
	v.SetDefault("thresholds.radiology_rate", 500.0)

	v.SetDefault("detection.days", 7)
	v.SetDefault("detection.include_ml", true)
	v.SetDefault("detection.include_rules", true)
	v.SetDefault("detection.create_alerts", true)
	v.SetDefault("detection.response_limit", 50)
	v.SetDefault("detection.reuse_training_normalization", false)

	v.SetDefault("artifacts.backend", "file")
	v.SetDefault("artifacts.dir", "./models")
	v.SetDefault("artifacts.s3.endpoint", "")
	v.SetDefault("artifacts.s3.bucket", "")
	v.SetDefault("artifacts.s3.prefix", "leakwatch/models")
	v.SetDefault("artifacts.s3.access_key_id", "")
	v.SetDefault("artifacts.s3.secret_access_key", "")
	v.SetDefault("artifacts.s3.use_ssl", true)

	v.SetDefault("training.history_path", "./models/training_history.db")
	v.SetDefault("training.history_limit", 10)
	v.SetDefault("training.max_rate_deviation", 0.5)
	v.SetDefault("training.snapshot_dir", "")

	v.SetDefault("notify.kafka.enabled", false)
	v.SetDefault("notify.kafka.brokers", []string{})
	v.SetDefault("notify.kafka.topic", "leakage-alerts")
	v.SetDefault("notify.kafka.write_timeout", "10s")
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", "")
	v.SetDefault("notify.telegram.min_priority", 4)
	v.SetDefault("notify.telegram.max_retries", 3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("metrics.textfile_path", "")
}

// Validate checks that all configuration values are usable. It does not
// require a DSN; commands that touch the database call ValidateWithDSN.
func (c *Config) Validate() error {
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Model.NEstimators < 1 {
		return fmt.Errorf("model.n_estimators must be at least 1")
	}
	if c.Model.Contamination <= 0 || c.Model.Contamination > 0.5 {
		return fmt.Errorf("model.contamination must be in (0, 0.5]")
	}
	if c.Model.MaxSamples < 0 {
		return fmt.Errorf("model.max_samples must not be negative")
	}
	if c.Model.MaxFeatures <= 0 || c.Model.MaxFeatures > 1 {
		return fmt.Errorf("model.max_features must be in (0, 1]")
	}

	if c.Data.LookbackDays < 1 {
		return fmt.Errorf("data.lookback_days must be at least 1")
	}
	if c.Data.MinTrainingSamples < 1 {
		return fmt.Errorf("data.min_training_samples must be at least 1")
	}
	if c.Data.BatchSize < 1 {
		return fmt.Errorf("data.batch_size must be at least 1")
	}

	t := c.Thresholds
	if t.AnomalyScore >= 0 {
		return fmt.Errorf("thresholds.anomaly_score must be negative")
	}
	if t.MinLeakageAmount < 0 {
		return fmt.Errorf("thresholds.min_leakage_amount must not be negative")
	}
	if t.HighPriorityAmount <= 0 || t.CriticalPriorityAmount < t.HighPriorityAmount {
		return fmt.Errorf("thresholds: need 0 < high_priority_amount <= critical_priority_amount")
	}
	if t.BillingDelayHours <= 0 {
		return fmt.Errorf("thresholds.billing_delay_hours must be positive")
	}
	if t.PriceVariancePercent < 0 {
		return fmt.Errorf("thresholds.price_variance_percent must not be negative")
	}

	if c.Detection.Days < 1 {
		return fmt.Errorf("detection.days must be at least 1")
	}
	if c.Detection.ResponseLimit < 1 {
		return fmt.Errorf("detection.response_limit must be at least 1")
	}

	switch c.Artifacts.Backend {
	case "file":
		if c.Artifacts.Dir == "" {
			return fmt.Errorf("artifacts.dir is required for the file backend")
		}
	case "s3":
		if c.Artifacts.S3.Endpoint == "" || c.Artifacts.S3.Bucket == "" {
			return fmt.Errorf("artifacts.s3.endpoint and artifacts.s3.bucket are required for the s3 backend")
		}
	default:
		return fmt.Errorf("artifacts.backend must be one of: file, s3")
	}

	if c.Training.HistoryPath == "" {
		return fmt.Errorf("training.history_path is required")
	}
	if c.Training.HistoryLimit < 1 {
		return fmt.Errorf("training.history_limit must be at least 1")
	}
	if c.Training.MaxRateDeviation <= 0 {
		return fmt.Errorf("training.max_rate_deviation must be positive")
	}

	if c.Notify.Kafka.Enabled {
		if len(c.Notify.Kafka.Brokers) == 0 {
			return fmt.Errorf("notify.kafka.brokers is required when kafka is enabled")
		}
		if c.Notify.Kafka.Topic == "" {
			return fmt.Errorf("notify.kafka.topic is required when kafka is enabled")
		}
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id is required when telegram is enabled")
		}
	}
	if p := c.Notify.Telegram.MinPriority; p < 1 || p > 4 {
		return fmt.Errorf("notify.telegram.min_priority must be between 1 and 4")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	return nil
}

// ValidateWithDSN checks the config and that a database DSN is present.
func (c *Config) ValidateWithDSN() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("--dsn, DATABASE_URL or database.dsn is required")
	}
	return nil
}

// YAML renders the effective configuration. Secrets are omitted.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return out, nil
}
