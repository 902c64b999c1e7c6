package fixture

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
	"github.com/sktmbtkr01/his-quasar-production/internal/store"
)

// Load replaces the his tables with ds using COPY.
func Load(ctx context.Context, s *store.Store, ds *Dataset, log zerolog.Logger) error {
	if err := s.TruncateHIS(ctx); err != nil {
		return err
	}
	steps := []struct {
		table string
		copy  func() (int64, error)
	}{
		{"billings", func() (int64, error) {
			return store.Copy(ctx, s, []string{"his", "billings"}, model.BillingColumns(), ds.Billings)
		}},
		{"prescriptions", func() (int64, error) {
			return store.Copy(ctx, s, []string{"his", "prescriptions"}, model.PrescriptionColumns(), ds.Prescriptions)
		}},
		{"clinical_tests", func() (int64, error) {
			return store.Copy(ctx, s, []string{"his", "clinical_tests"}, model.ClinicalTestColumns(), ds.Tests)
		}},
		{"emr", func() (int64, error) {
			return store.Copy(ctx, s, []string{"his", "emr"}, model.EMRColumns(), ds.EMR)
		}},
		{"tariffs", func() (int64, error) {
			return store.Copy(ctx, s, []string{"his", "tariffs"}, model.TariffColumns(), ds.Tariffs)
		}},
	}
	for _, step := range steps {
		n, err := step.copy()
		if err != nil {
			return fmt.Errorf("load %s: %w", step.table, err)
		}
		log.Info().Str("table", step.table).Int64("rows", n).Msg("loaded fixture rows")
	}
	return nil
}
