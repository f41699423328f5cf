// Package axis derives y-axis display ranges from buffered samples.
//
// Ranges are recentred on the data every tick: they always contain the
// observed min/max, span at least the axis context when the data is flat,
// and tighten toward the data once the spread exceeds the context.
package axis

import (
	"math"

	"github.com/djlord-it/botgraph/internal/domain"
)

// Contexts holds the nominal minimum span per axis group.
type Contexts map[domain.AxisGroup]float64

// DefaultContexts returns the stock spans for player, bot and impact axes.
func DefaultContexts() Contexts {
	return Contexts{
		domain.AxisAllPlayers:    500,
		domain.AxisMaliciousBots: 50,
		domain.AxisImpact:        5,
	}
}

// Estimator computes ranges for every axis group.
type Estimator struct {
	contexts Contexts
}

// NewEstimator creates an Estimator. Groups missing from contexts use the defaults.
func NewEstimator(contexts Contexts) *Estimator {
	merged := DefaultContexts()
	for g, c := range contexts {
		merged[g] = c
	}
	return &Estimator{contexts: merged}
}

// Context returns the span configured for group.
func (e *Estimator) Context(group domain.AxisGroup) float64 {
	return e.contexts[group]
}

// Estimate returns one range per axis group from index-aligned columns.
func (e *Estimator) Estimate(cols map[domain.Series][]float64) map[domain.AxisGroup]domain.AxisRange {
	out := make(map[domain.AxisGroup]domain.AxisRange, len(domain.AllAxisGroups))
	for _, group := range domain.AllAxisGroups {
		var values [][]float64
		for _, series := range domain.AxisSeries(group) {
			values = append(values, considered(cols[series]))
		}
		out[group] = Range(e.contexts[group], values...)
	}
	return out
}

// considered drops index 0. The first slot of a freshly started chart is a
// placeholder, so bounds are taken from the rest; a single sample is kept.
func considered(values []float64) []float64 {
	if len(values) <= 1 {
		return values
	}
	return values[1:]
}

// Range computes the display range for the union of series against context.
// With no data it returns [0, context].
func Range(context float64, series ...[]float64) domain.AxisRange {
	lo, hi, ok := bounds(series...)
	if !ok {
		return domain.AxisRange{Min: 0, Max: context}
	}

	max := hi
	min := math.Max(lo, 0)
	spread := max - min

	slack := context - spread/2
	if spread < context {
		slack = context / 2
	}

	return domain.AxisRange{
		Min: math.Min(min, min-slack),
		Max: math.Max(max, max+slack),
	}
}

func bounds(series ...[]float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, values := range series {
		for _, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			ok = true
		}
	}
	return lo, hi, ok
}
