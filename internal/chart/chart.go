// Package chart renders one axis group of a frame as a PNG line chart.
package chart

import (
	"errors"
	"fmt"
	"io"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/djlord-it/botgraph/internal/domain"
)

var (
	ErrNoData       = errors.New("frame has no samples")
	ErrUnknownGroup = errors.New("unknown axis group")
)

const (
	DefaultWidth  = 960
	DefaultHeight = 320
	maxXTicks     = 8
)

// Options controls the rendered image size. Zero values use the defaults.
type Options struct {
	Width  int
	Height int
}

var seriesColors = map[domain.Series]drawing.Color{
	domain.SeriesTotal:     drawing.ColorFromHex("4a90d9"),
	domain.SeriesHumans:    drawing.ColorFromHex("50b35a"),
	domain.SeriesMalicious: drawing.ColorFromHex("d9534f"),
	domain.SeriesImpact:    drawing.ColorFromHex("f0ad4e"),
}

var seriesNames = map[domain.Series]string{
	domain.SeriesTotal:     "All players",
	domain.SeriesHumans:    "Humans",
	domain.SeriesMalicious: "Malicious bots",
	domain.SeriesImpact:    "Bot impact %",
}

var groupTitles = map[domain.AxisGroup]string{
	domain.AxisAllPlayers:    "Players",
	domain.AxisMaliciousBots: "Malicious bots",
	domain.AxisImpact:        "Bot impact (%)",
}

// RenderPNG draws every series of group in frame against the frame's range
// for that group and writes the PNG to w.
func RenderPNG(w io.Writer, frame domain.Frame, group domain.AxisGroup, opts Options) error {
	members := domain.AxisSeries(group)
	if members == nil {
		return fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	n := len(frame.Labels)
	if n == 0 {
		return ErrNoData
	}

	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	xMax := float64(n - 1)
	if n == 1 {
		// A single point still needs a non-zero x range.
		xs = []float64{0, 1}
		xMax = 1
	}

	series := make([]gochart.Series, 0, len(members))
	for _, s := range members {
		ys := frame.Series[s]
		if len(ys) != n {
			return fmt.Errorf("series %s has %d values for %d labels", s, len(ys), n)
		}
		if n == 1 {
			ys = []float64{ys[0], ys[0]}
		}
		series = append(series, gochart.ContinuousSeries{
			Name:    seriesNames[s],
			XValues: xs,
			YValues: ys,
			Style: gochart.Style{
				StrokeColor: seriesColors[s],
				StrokeWidth: 2,
			},
		})
	}

	yr := frame.Ranges[group]
	if yr.Span() <= 0 {
		yr.Max = yr.Min + 1
	}

	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	ch := gochart.Chart{
		Title:      groupTitles[group],
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 24, Left: 16, Right: 12, Bottom: 28}},
		XAxis: gochart.XAxis{
			Name:  "Time",
			Range: &gochart.ContinuousRange{Min: 0, Max: xMax},
			Ticks: labelTicks(frame.Labels),
		},
		YAxis: gochart.YAxis{
			Name:  groupTitles[group],
			Range: &gochart.ContinuousRange{Min: yr.Min, Max: yr.Max},
		},
		Series: series,
	}
	ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}

	if err := ch.Render(gochart.PNG, w); err != nil {
		return fmt.Errorf("render %s chart: %w", group, err)
	}
	return nil
}

// labelTicks picks at most maxXTicks evenly spaced labels, always including
// the first and last.
func labelTicks(labels []string) []gochart.Tick {
	n := len(labels)
	if n == 1 {
		return []gochart.Tick{{Value: 0, Label: labels[0]}, {Value: 1, Label: ""}}
	}
	m := min(n, maxXTicks)
	ticks := make([]gochart.Tick, 0, m)
	for k := 0; k < m; k++ {
		i := k * (n - 1) / (m - 1)
		ticks = append(ticks, gochart.Tick{Value: float64(i), Label: labels[i]})
	}
	return ticks
}
