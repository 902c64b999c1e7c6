package parquetio

import (
	"math"

	"github.com/sktmbtkr01/his-quasar-production/internal/iforest"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

// ColumnStats summarises one feature column.
type ColumnStats struct {
	Name   string  `json:"name"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// Summary describes a feature file.
type Summary struct {
	Rows       int             `json:"rows"`
	VisitTypes map[string]int  `json:"visit_types"`
	DateRange  model.DateRange `json:"date_range"`
	Columns    []ColumnStats   `json:"columns"`
}

// Summarize computes per-column statistics over records.
func Summarize(records []model.VisitFeatureRecord) Summary {
	s := Summary{Rows: len(records), VisitTypes: map[string]int{}}
	for i := range records {
		r := &records[i]
		s.VisitTypes[r.VisitType]++
		if r.BillDate == nil {
			continue
		}
		if s.DateRange.Start == nil || r.BillDate.Before(*s.DateRange.Start) {
			s.DateRange.Start = r.BillDate
		}
		if s.DateRange.End == nil || r.BillDate.After(*s.DateRange.End) {
			s.DateRange.End = r.BillDate
		}
	}
	if len(records) == 0 {
		return s
	}

	col := make([]float64, len(records))
	for _, name := range model.FeatureNames {
		lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
		for i := range records {
			v := records[i].Feature(name)
			col[i] = v
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			sum += v
		}
		s.Columns = append(s.Columns, ColumnStats{
			Name:   name,
			Min:    lo,
			Max:    hi,
			Mean:   sum / float64(len(records)),
			Median: iforest.Percentile(col, 50),
		})
	}
	return s
}
