package api

import (
	"time"

	"github.com/djlord-it/botgraph/internal/region"
	"github.com/djlord-it/botgraph/internal/scheduler"
)

type ReconfigureRequest struct {
	Hours *float64 `json:"hours"`
}

type StatusResponse struct {
	Running         bool    `json:"running"`
	WindowHours     float64 `json:"window_hours"`
	IntervalSeconds float64 `json:"interval_seconds"`
	Capacity        int     `json:"capacity"`
	Len             int     `json:"len"`
	Epoch           uint64  `json:"epoch"`
	Ticks           uint64  `json:"ticks"`
}

type ControlResponse struct {
	Action  string         `json:"action"`
	Changed bool           `json:"changed"`
	Status  StatusResponse `json:"status"`
}

type RegionsResponse struct {
	Available bool           `json:"available"`
	Regions   []region.Entry `json:"regions"`
}

type RegionToggleResponse struct {
	ID       string `json:"id"`
	Included bool   `json:"included"`
}

type TickResponse struct {
	ID         string `json:"id"`
	Seq        uint64 `json:"seq"`
	Epoch      uint64 `json:"epoch"`
	StartedAt  string `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
	Appended   bool   `json:"appended"`
	Error      string `json:"error,omitempty"`
}

type TicksResponse struct {
	Ticks []TickResponse `json:"ticks"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func toStatusResponse(s scheduler.Status) StatusResponse {
	return StatusResponse{
		Running:         s.Running,
		WindowHours:     s.Window.Hours(),
		IntervalSeconds: s.Interval.Seconds(),
		Capacity:        s.Capacity,
		Len:             s.Len,
		Epoch:           s.Epoch,
		Ticks:           s.Ticks,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
