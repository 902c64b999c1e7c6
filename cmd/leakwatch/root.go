package main

import (
	"context"
	"errors"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sktmbtkr01/his-quasar-production/internal/config"
	"github.com/sktmbtkr01/his-quasar-production/internal/engine"
	"github.com/sktmbtkr01/his-quasar-production/internal/exitcode"
	"github.com/sktmbtkr01/his-quasar-production/internal/logging"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

var (
	cfg *config.Config
	log zerolog.Logger

	configPath  string
	dsn         string
	logFormat   string
	logLevel    string
	metricsFile string
)

var rootCmd = &cobra.Command{
	Use:   "leakwatch",
	Short: "Hospital billing revenue-leakage detection",
	Long: "Scans HIS billing, prescription, clinical test and EMR records for revenue leakage " +
		"using an isolation forest and deterministic billing rules, and manages the resulting alerts.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to YAML config file")
	pf.StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "Postgres connection string (or set DATABASE_URL)")
	pf.StringVar(&logFormat, "log-format", "", "Log format: text or json")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the command")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		l := logging.Setup("text", "info")
		l.Error().Err(err).Msg("load config failed")
		os.Exit(exitcode.UsageError)
	}
	if dsn != "" {
		c.Database.DSN = dsn
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if metricsFile != "" {
		c.Metrics.TextfilePath = metricsFile
	}
	cfg = c
	log = logging.Setup(cfg.Logging.Format, cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	return nil
}

// openEngine connects every dependency or exits with the matching code.
func openEngine(ctx context.Context) *engine.Engine {
	if err := cfg.ValidateWithDSN(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	e, err := engine.Open(ctx, cfg, log)
	if err != nil {
		var se *engine.SetupError
		if errors.As(err, &se) && se.Component == "database" {
			log.Error().Err(se.Err).Msg("database connection failed")
			os.Exit(exitcode.DBConnError)
		}
		log.Error().Err(err).Msg("engine setup failed")
		os.Exit(exitcode.PersistenceError)
	}
	return e
}

// closeEngine flushes metrics and releases connections.
func closeEngine(e *engine.Engine) {
	e.WriteMetrics()
	if err := e.Close(); err != nil {
		log.Warn().Err(err).Msg("close engine")
	}
}

// exitFor maps an error to the process exit code of its failure class.
func exitFor(err error) int {
	switch {
	case errors.Is(err, model.ErrModelNotTrained):
		return exitcode.NotTrained
	case errors.Is(err, model.ErrInsufficientData):
		return exitcode.InsufficientData
	case errors.Is(err, model.ErrAlertNotFound):
		return exitcode.NotFound
	case errors.Is(err, model.ErrInvalidStatus), errors.Is(err, model.ErrValidationFailure):
		return exitcode.ValidationError
	case errors.Is(err, model.ErrSourceUnavailable):
		return exitcode.SourceError
	case errors.Is(err, model.ErrPersistenceFailure):
		return exitcode.PersistenceError
	}
	return exitcode.TrainingError
}

// fail logs err and exits. Deferred calls do not run, so callers close the
// engine first.
func fail(err error, msg string) {
	log.Error().Err(err).Str("code", model.ErrorCode(err)).Msg(msg)
	os.Exit(exitFor(err))
}

func printJSON(v any) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
