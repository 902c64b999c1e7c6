package parquetio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

// WriteFeatures writes records to path, replacing any existing file. The
// file is written to a temporary name first and renamed on success.
func WriteFeatures(path string, records []model.VisitFeatureRecord) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".features-*.parquet")
	if err != nil {
		return fmt.Errorf("create temp parquet file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	rows := make([]FeatureRow, len(records))
	for i := range records {
		rows[i] = FromRecord(&records[i])
	}

	w := parquet.NewGenericWriter[FeatureRow](tmp, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close parquet file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename parquet file: %w", err)
	}
	return nil
}
