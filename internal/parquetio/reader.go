package parquetio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

// Reader streams FeatureRow records from a Parquet file.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[FeatureRow]
}

// Open opens a Parquet file and returns a streaming Reader. The schema must
// contain every model feature column.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat parquet file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	if err := ValidateSchema(pf.Schema()); err != nil {
		f.Close()
		return nil, err
	}

	r := parquet.NewGenericReader[FeatureRow](pf)
	return &Reader{file: f, reader: r}, nil
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Read reads up to len(rows) records. It returns io.EOF when done.
func (r *Reader) Read(rows []FeatureRow) (int, error) {
	n, err := r.reader.Read(rows)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("read parquet rows: %w", err)
	}
	return n, err
}

// Schema returns the file schema.
func (r *Reader) Schema() *parquet.Schema {
	return r.reader.Schema()
}

// Close releases all resources.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// ReadAll loads every record from path.
func ReadAll(path string) ([]model.VisitFeatureRecord, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]model.VisitFeatureRecord, 0, r.NumRows())
	buf := make([]FeatureRow, 512)
	for {
		n, err := r.Read(buf)
		for i := range n {
			out = append(out, buf[i].Record())
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// ValidateSchema checks that the schema carries the visit id and every
// model feature column.
func ValidateSchema(schema *parquet.Schema) error {
	columns := make(map[string]bool)
	for _, field := range schema.Fields() {
		columns[strings.ToLower(field.Name())] = true
	}
	required := append([]string{"visit_id"}, model.FeatureNames...)
	var missing []string
	for _, col := range required {
		if !columns[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
