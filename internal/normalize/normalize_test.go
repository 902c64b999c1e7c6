package normalize

import (
	"math"
	"testing"
	"time"
)

func TestFinite(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1.5, 1.5},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{math.Inf(-1), 0},
		{-3, -3},
	}
	for _, c := range cases {
		if got := Finite(c.in); got != c.want {
			t.Errorf("Finite(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio(50, 200); got != 0.25 {
		t.Errorf("Ratio(50, 200) = %v, want 0.25", got)
	}
	if got := Ratio(50, 0); got != 0 {
		t.Errorf("Ratio(50, 0) = %v, want 0", got)
	}
	if got := Ratio(50, -10); got != 0 {
		t.Errorf("Ratio(50, -10) = %v, want 0", got)
	}
}

func TestVarianceRatio(t *testing.T) {
	if got := VarianceRatio(80, 100); math.Abs(got-0.2) > 1e-12 {
		t.Errorf("VarianceRatio(80, 100) = %v, want 0.2", got)
	}
	if got := VarianceRatio(80, 0); got != 0 {
		t.Errorf("VarianceRatio(80, 0) = %v, want 0", got)
	}
}

func TestHoursBetween(t *testing.T) {
	a := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	b := a.Add(30 * time.Hour)
	if got := HoursBetween(&a, &b); got != 30 {
		t.Errorf("HoursBetween = %v, want 30", got)
	}
	if got := HoursBetween(nil, &b); got != 0 {
		t.Errorf("HoursBetween(nil, b) = %v, want 0", got)
	}
}

func TestRoundMoney(t *testing.T) {
	if got := RoundMoney(12.344); got != 12.34 {
		t.Errorf("RoundMoney(12.344) = %v, want 12.34", got)
	}
	if got := SumMoney(0.1, 0.2, math.NaN()); got != 0.3 {
		t.Errorf("SumMoney = %v, want 0.3", got)
	}
}

func TestParseDate(t *testing.T) {
	cases := map[string]bool{
		"2024-05-01":           true,
		"2024-05-01T10:00:00Z": true,
		"05/01/2024":           true,
		"":                     false,
		"yesterday":            false,
	}
	for in, ok := range cases {
		got := ParseDate(in)
		if (got != nil) != ok {
			t.Errorf("ParseDate(%q) = %v, want parsed=%v", in, got, ok)
		}
	}
}

func TestDigest(t *testing.T) {
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := Digest([]byte("hello")); got != want {
		t.Errorf("Digest(hello) = %s, want %s", got, want)
	}
}

func TestDaysSince(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"2024-05-03", 8, false},
		{"2024-05-09T12:00:00Z", 1, false},
		{"2024-05-10 06:00", 1, false},
		{"2024-05-11", 0, true},
		{"last week", 0, true},
	}
	for _, tt := range tests {
		got, err := DaysSince(tt.in, now)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("DaysSince(%q) = %d, %v; want %d, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}
