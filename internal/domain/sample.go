package domain

import (
	"math"
	"time"
)

// LabelLayout is the wall-clock format used for sample labels.
const LabelLayout = "15:04:05"

// Series identifies one plotted value of a Sample.
type Series string

const (
	SeriesTotal     Series = "all_players"
	SeriesHumans    Series = "humans"
	SeriesMalicious Series = "malicious_bots"
	SeriesImpact    Series = "impact"
)

// AllSeries lists every series in display order.
var AllSeries = []Series{SeriesTotal, SeriesHumans, SeriesMalicious, SeriesImpact}

// Sample is one observation of player/bot counts.
type Sample struct {
	Label      string
	CapturedAt time.Time
	Total      float64
	Humans     float64
	Malicious  float64
	Impact     float64
}

// NewSample derives the human and impact series from raw counts.
func NewSample(at time.Time, counts Counts) Sample {
	total := float64(counts.AllPlayers)
	bots := float64(counts.MaliciousBots)
	return Sample{
		Label:      at.Format(LabelLayout),
		CapturedAt: at,
		Total:      total,
		Humans:     total - bots,
		Malicious:  bots,
		Impact:     Impact(total, bots),
	}
}

// Value returns the value of the named series, or 0 for an unknown series.
func (s Sample) Value(series Series) float64 {
	switch series {
	case SeriesTotal:
		return s.Total
	case SeriesHumans:
		return s.Humans
	case SeriesMalicious:
		return s.Malicious
	case SeriesImpact:
		return s.Impact
	default:
		return 0
	}
}

// Normalized returns a copy with every non-finite value replaced by 0.
func (s Sample) Normalized() Sample {
	s.Total = Finite(s.Total)
	s.Humans = Finite(s.Humans)
	s.Malicious = Finite(s.Malicious)
	s.Impact = Finite(s.Impact)
	return s
}

// Impact returns the malicious share of total players as a percentage.
func Impact(total, bots float64) float64 {
	return SafeDivide(bots, total) * 100
}

// SafeDivide returns num/den, or 0 when den is zero or the result is not finite.
func SafeDivide(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return Finite(num / den)
}

// Finite maps NaN and ±Inf to 0.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
