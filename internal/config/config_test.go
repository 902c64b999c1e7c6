package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Model.NEstimators != 100 {
		t.Errorf("n_estimators = %d, want 100", c.Model.NEstimators)
	}
	if c.Model.Contamination != 0.1 {
		t.Errorf("contamination = %v, want 0.1", c.Model.Contamination)
	}
	if c.Thresholds.MinLeakageAmount != 100 {
		t.Errorf("min_leakage_amount = %v, want 100", c.Thresholds.MinLeakageAmount)
	}
	if c.Thresholds.CriticalPriorityAmount != 10000 {
		t.Errorf("critical_priority_amount = %v, want 10000", c.Thresholds.CriticalPriorityAmount)
	}
	if c.Training.HistoryLimit != 10 {
		t.Errorf("history_limit = %d, want 10", c.Training.HistoryLimit)
	}
	if !c.Detection.IncludeML || !c.Detection.IncludeRules || !c.Detection.CreateAlerts {
		t.Errorf("detection defaults should all be enabled: %+v", c.Detection)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
model:
  n_estimators: 50
  contamination: 0.05
thresholds:
  price_variance_percent: 15
artifacts:
  backend: s3
  s3:
    endpoint: localhost:9000
    bucket: models
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Model.NEstimators != 50 {
		t.Errorf("n_estimators = %d, want 50", c.Model.NEstimators)
	}
	if c.Model.Contamination != 0.05 {
		t.Errorf("contamination = %v, want 0.05", c.Model.Contamination)
	}
	if c.Thresholds.PriceVariancePercent != 15 {
		t.Errorf("price_variance_percent = %v, want 15", c.Thresholds.PriceVariancePercent)
	}
	// untouched keys keep their defaults
	if c.Data.LookbackDays != 90 {
		t.Errorf("lookback_days = %d, want 90", c.Data.LookbackDays)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LEAKWATCH_DATA_LOOKBACK_DAYS", "30")
	t.Setenv("LEAKWATCH_LOGGING_FORMAT", "json")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Data.LookbackDays != 30 {
		t.Errorf("lookback_days = %d, want 30", c.Data.LookbackDays)
	}
	if c.Logging.Format != "json" {
		t.Errorf("logging.format = %q, want json", c.Logging.Format)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero estimators", func(c *Config) { c.Model.NEstimators = 0 }},
		{"contamination too high", func(c *Config) { c.Model.Contamination = 0.6 }},
		{"contamination zero", func(c *Config) { c.Model.Contamination = 0 }},
		{"positive anomaly threshold", func(c *Config) { c.Thresholds.AnomalyScore = 0.2 }},
		{"critical below high", func(c *Config) { c.Thresholds.CriticalPriorityAmount = 1000 }},
		{"unknown backend", func(c *Config) { c.Artifacts.Backend = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Artifacts.Backend = "s3"; c.Artifacts.S3.Endpoint = "x" }},
		{"kafka without brokers", func(c *Config) { c.Notify.Kafka.Enabled = true }},
		{"telegram without token", func(c *Config) { c.Notify.Telegram.Enabled = true }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"zero history", func(c *Config) { c.Training.HistoryLimit = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateWithDSN(t *testing.T) {
	c := Default()
	if err := c.ValidateWithDSN(); err == nil {
		t.Fatal("expected error without DSN")
	}
	c.Database.DSN = "postgres://localhost/his"
	if err := c.ValidateWithDSN(); err != nil {
		t.Fatalf("ValidateWithDSN: %v", err)
	}
}

func TestYAML_OmitsSecrets(t *testing.T) {
	c := Default()
	c.Artifacts.S3.SecretAccessKey = "s3cr3t"
	c.Notify.Telegram.BotToken = "123:abc"
	out, err := c.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	s := string(out)
	if strings.Contains(s, "s3cr3t") || strings.Contains(s, "123:abc") {
		t.Errorf("rendered config leaks secrets:\n%s", s)
	}
	if !strings.Contains(s, "n_estimators: 100") {
		t.Errorf("rendered config missing model section:\n%s", s)
	}
}
