package domain

// AxisGroup names a y-axis shared by one or more series.
type AxisGroup string

const (
	AxisAllPlayers    AxisGroup = "all_players"
	AxisMaliciousBots AxisGroup = "malicious_bots"
	AxisImpact        AxisGroup = "impact"
)

// AllAxisGroups lists the axis groups in display order.
var AllAxisGroups = []AxisGroup{AxisAllPlayers, AxisMaliciousBots, AxisImpact}

// AxisSeries returns the series plotted against the given axis group.
func AxisSeries(group AxisGroup) []Series {
	switch group {
	case AxisAllPlayers:
		return []Series{SeriesTotal, SeriesHumans}
	case AxisMaliciousBots:
		return []Series{SeriesMalicious}
	case AxisImpact:
		return []Series{SeriesImpact}
	default:
		return nil
	}
}

// AxisRange is a display range for one axis group.
type AxisRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Span returns Max - Min.
func (r AxisRange) Span() float64 {
	return r.Max - r.Min
}

// Frame is everything the chart needs to redraw after one tick.
// Every slice in Series has the same length as Labels.
type Frame struct {
	Seq             uint64                  `json:"seq"`
	Epoch           uint64                  `json:"epoch"`
	Labels          []string                `json:"labels"`
	Series          map[Series][]float64    `json:"series"`
	Ranges          map[AxisGroup]AxisRange `json:"ranges"`
	IntervalSeconds float64                 `json:"interval_seconds"`
	Capacity        int                     `json:"capacity"`
	Running         bool                    `json:"running"`
}
