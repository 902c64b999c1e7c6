package parquetio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

func sampleRecords() []model.VisitFeatureRecord {
	d := time.Date(2024, 9, 2, 10, 30, 0, 0, time.UTC)
	return []model.VisitFeatureRecord{
		{VisitID: "V-1", PatientID: "P-1", BillID: "B-1", VisitType: "opd", BillDate: &d,
			TotalServices: 3, TotalBilledAmount: 1500, TotalExpectedAmount: 1800, PaymentCompletionRatio: 1, ItemsPerVisit: 3},
		{VisitID: "V-2", VisitType: "unknown", TotalServices: 1, TotalBilledAmount: 300, TotalExpectedAmount: 300},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "features.parquet")
	recs := sampleRecords()
	if err := WriteFeatures(path, recs); err != nil {
		t.Fatalf("WriteFeatures: %v", err)
	}

	got, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].VisitID != "V-1" || got[0].TotalExpectedAmount != 1800 || got[0].BillDate == nil || !got[0].BillDate.Equal(*recs[0].BillDate) {
		t.Errorf("row 0 = %+v", got[0])
	}
	if got[1].BillDate != nil || got[1].PatientID != "" {
		t.Errorf("row 1 = %+v", got[1])
	}
}

func TestWriteFeatures_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")
	if err := WriteFeatures(path, nil); err != nil {
		t.Fatalf("WriteFeatures: %v", err)
	}
	got, err := ReadAll(path)
	if err != nil || len(got) != 0 {
		t.Errorf("ReadAll = %d rows, %v", len(got), err)
	}
}

func TestOpen_RejectsForeignSchema(t *testing.T) {
	type other struct {
		Name string `parquet:"name"`
	}
	path := filepath.Join(t.TempDir(), "other.parquet")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := parquet.NewGenericWriter[other](f)
	if _, err := w.Write([]other{{Name: "x"}}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := Open(path); err == nil {
		t.Error("expected schema error")
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleRecords())
	if s.Rows != 2 || s.VisitTypes["opd"] != 1 || s.VisitTypes["unknown"] != 1 {
		t.Errorf("summary = %+v", s)
	}
	if len(s.Columns) != len(model.FeatureNames) {
		t.Fatalf("columns = %d", len(s.Columns))
	}
	billed := s.Columns[1]
	if billed.Name != model.FeatTotalBilledAmount || billed.Min != 300 || billed.Max != 1500 || billed.Mean != 900 {
		t.Errorf("billed stats = %+v", billed)
	}
	if s.DateRange.Start == nil || !s.DateRange.Start.Equal(*s.DateRange.End) {
		t.Errorf("date range = %+v", s.DateRange)
	}
	if empty := Summarize(nil); empty.Rows != 0 || empty.Columns != nil {
		t.Errorf("empty summary = %+v", empty)
	}
}
