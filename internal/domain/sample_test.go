package domain

import (
	"math"
	"testing"
	"time"
)

func TestImpact(t *testing.T) {
	tests := []struct {
		name        string
		total, bots float64
		want        float64
	}{
		{"zero total", 0, 0, 0},
		{"quarter", 100, 25, 25},
		{"all bots", 40, 40, 100},
		{"bots without total", 0, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Impact(tt.total, tt.bots)
			if math.IsNaN(got) {
				t.Fatalf("Impact(%v, %v) = NaN", tt.total, tt.bots)
			}
			if got != tt.want {
				t.Errorf("Impact(%v, %v) = %v, want %v", tt.total, tt.bots, got, tt.want)
			}
		})
	}
}

func TestFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if got := Finite(v); got != 0 {
			t.Errorf("Finite(%v) = %v, want 0", v, got)
		}
	}
	if got := Finite(3.5); got != 3.5 {
		t.Errorf("Finite(3.5) = %v", got)
	}
}

func TestNewSample_DerivesSeries(t *testing.T) {
	at := time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC)
	s := NewSample(at, Counts{AllPlayers: 200, MaliciousBots: 50})

	if s.Label != "14:05:09" {
		t.Errorf("Label = %q, want 14:05:09", s.Label)
	}
	if s.Total != 200 || s.Humans != 150 || s.Malicious != 50 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.Impact != 25 {
		t.Errorf("Impact = %v, want 25", s.Impact)
	}
	if s.Value(SeriesHumans) != 150 {
		t.Errorf("Value(humans) = %v, want 150", s.Value(SeriesHumans))
	}
}

func TestSample_Normalized(t *testing.T) {
	s := Sample{Total: math.NaN(), Humans: math.Inf(1), Malicious: 3, Impact: math.Inf(-1)}.Normalized()
	if s.Total != 0 || s.Humans != 0 || s.Impact != 0 {
		t.Errorf("non-finite values not normalized: %+v", s)
	}
	if s.Malicious != 3 {
		t.Errorf("Malicious = %v, want 3", s.Malicious)
	}
}

func TestWindowDuration(t *testing.T) {
	tests := []struct {
		name   string
		hours  float64
		want   time.Duration
		wantOK bool
	}{
		{"one hour", 1, time.Hour, true},
		{"quarter hour", 0.25, 15 * time.Minute, true},
		{"one week", 168, 168 * time.Hour, true},
		{"zero", 0, 0, false},
		{"negative", -2, 0, false},
		{"nan", math.NaN(), 0, false},
		{"positive infinity", math.Inf(1), 0, false},
		{"negative infinity", math.Inf(-1), 0, false},
		{"at the duration limit", maxWindowHours, 0, false},
		{"beyond the duration limit", 1e12, 0, false},
		{"rounds to zero", 1e-20, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := WindowDuration(tt.hours)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("WindowDuration(%v) = %v, %v; want %v, %v", tt.hours, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
