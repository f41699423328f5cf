package api

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/djlord-it/botgraph/internal/chart"
	"github.com/djlord-it/botgraph/internal/domain"
	"github.com/djlord-it/botgraph/internal/region"
	"github.com/djlord-it/botgraph/internal/scheduler"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Chart size bounds accepted via ?width= and ?height=.
const (
	minChartSize = 64
	maxChartSize = 4096
)

//go:embed static/index.html
var indexHTML []byte

// Controller is the scheduler surface exposed over HTTP.
type Controller interface {
	Start() bool
	Stop() bool
	Resume() bool
	Clear()
	Reconfigure(hours float64) error
	ToggleRegion(id string) (bool, error)
	LatestFrame() domain.Frame
	Status() scheduler.Status
}

// RegionSource lists the regions offered in the selector.
type RegionSource interface {
	Available() bool
	Entries() []region.Entry
}

// TickStore serves the tick journal.
type TickStore interface {
	RecentTicks(ctx context.Context, limit int) ([]domain.Tick, error)
}

// HealthChecker reports the health of one backing component for verbose /health responses.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	ctl     Controller
	regions RegionSource
	ticks   TickStore
	push    http.Handler
	checks  map[string]HealthChecker
}

func NewHandler(ctl Controller, regions RegionSource) *Handler {
	return &Handler{
		ctl:     ctl,
		regions: regions,
		checks:  make(map[string]HealthChecker),
	}
}

// WithTicks enables GET /api/ticks.
func (h *Handler) WithTicks(store TickStore) *Handler {
	h.ticks = store
	return h
}

// WithPush mounts the browser push endpoint on /ws.
func (h *Handler) WithPush(push http.Handler) *Handler {
	h.push = push
	return h
}

// WithHealthChecker registers a named component for verbose /health responses.
func (h *Handler) WithHealthChecker(name string, c HealthChecker) *Handler {
	h.checks[name] = c
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/" && r.Method == http.MethodGet:
		h.index(w, r)

	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/ws" && r.Method == http.MethodGet:
		if h.push == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		h.push.ServeHTTP(w, r)

	case path == "/api/frame" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, h.ctl.LatestFrame())

	case path == "/api/status" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, toStatusResponse(h.ctl.Status()))

	case strings.HasPrefix(path, "/chart/") && strings.HasSuffix(path, ".png") && r.Method == http.MethodGet:
		h.chart(w, r)

	case path == "/api/regions" && r.Method == http.MethodGet:
		h.listRegions(w, r)

	case strings.HasPrefix(path, "/api/regions/") && strings.HasSuffix(path, "/toggle") && r.Method == http.MethodPost:
		h.toggleRegion(w, r)

	case path == "/api/control/reconfigure" && r.Method == http.MethodPost:
		h.reconfigure(w, r)

	case strings.HasPrefix(path, "/api/control/") && r.Method == http.MethodPost:
		h.control(w, r)

	case path == "/api/ticks" && r.Method == http.MethodGet:
		h.listTicks(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(indexHTML); err != nil {
		log.Printf("api: write index error: %v", err)
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"
	if !verbose {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	if h.ctl.Status().Running {
		resp.Components["scheduler"] = "running"
	} else {
		resp.Components["scheduler"] = "stopped"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Components[name] = "unhealthy: " + err.Error()
		} else {
			resp.Components[name] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

func (h *Handler) chart(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/chart/"), ".png")
	group := domain.AxisGroup(name)

	opts, err := parseChartOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Render into memory so a failure can still produce a JSON error.
	var buf bytes.Buffer
	err = chart.RenderPNG(&buf, h.ctl.LatestFrame(), group, opts)
	switch {
	case errors.Is(err, chart.ErrUnknownGroup):
		writeError(w, http.StatusNotFound, "unknown axis group")
		return
	case errors.Is(err, chart.ErrNoData):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		log.Printf("api: render chart %s error: %v", name, err)
		writeError(w, http.StatusInternalServerError, "failed to render chart")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("api: write chart error: %v", err)
	}
}

func (h *Handler) listRegions(w http.ResponseWriter, r *http.Request) {
	resp := RegionsResponse{
		Available: h.regions.Available(),
		Regions:   h.regions.Entries(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) toggleRegion(w http.ResponseWriter, r *http.Request) {
	// path: /api/regions/{id}/toggle
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/regions/"), "/toggle")
	if err := validateRegionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	included, err := h.ctl.ToggleRegion(id)
	if err != nil {
		if errors.Is(err, scheduler.ErrUnknownRegion) {
			writeError(w, http.StatusNotFound, "region not found")
			return
		}
		log.Printf("api: toggle region %s error: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to toggle region")
		return
	}

	writeJSON(w, http.StatusOK, RegionToggleResponse{ID: id, Included: included})
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) reconfigure(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req ReconfigureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validateReconfigure(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.ctl.Reconfigure(*req.Hours); err != nil {
		if errors.Is(err, scheduler.ErrInvalidWindow) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("api: reconfigure error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to reconfigure")
		return
	}

	writeJSON(w, http.StatusOK, ControlResponse{
		Action:  "reconfigure",
		Changed: true,
		Status:  toStatusResponse(h.ctl.Status()),
	})
}

func (h *Handler) control(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/api/control/")

	var changed bool
	switch action {
	case "start":
		changed = h.ctl.Start()
	case "resume":
		changed = h.ctl.Resume()
	case "stop":
		changed = h.ctl.Stop()
	case "clear":
		h.ctl.Clear()
		changed = true
	default:
		writeError(w, http.StatusNotFound, "unknown control action")
		return
	}

	writeJSON(w, http.StatusOK, ControlResponse{
		Action:  action,
		Changed: changed,
		Status:  toStatusResponse(h.ctl.Status()),
	})
}

func (h *Handler) listTicks(w http.ResponseWriter, r *http.Request) {
	if h.ticks == nil {
		writeError(w, http.StatusNotFound, "tick journal disabled")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		var limitErr *limitExceededError
		if errors.As(err, &limitErr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid limit parameter")
		return
	}

	ticks, err := h.ticks.RecentTicks(r.Context(), limit)
	if err != nil {
		log.Printf("api: list ticks error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list ticks")
		return
	}

	resp := TicksResponse{Ticks: make([]TickResponse, 0, len(ticks))}
	for _, t := range ticks {
		resp.Ticks = append(resp.Ticks, TickResponse{
			ID:         t.ID.String(),
			Seq:        t.Seq,
			Epoch:      t.Epoch,
			StartedAt:  formatTime(t.StartedAt),
			DurationMS: t.Duration.Milliseconds(),
			Appended:   t.Appended,
			Error:      t.Error,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// parseLimit extracts and validates the limit query parameter.
// Returns DefaultLimit if limit is not specified or zero.
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return DefaultLimit, nil
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, err
	}
	if limit < 0 {
		return 0, strconv.ErrRange
	}
	if limit > MaxLimit {
		return 0, &limitExceededError{max: MaxLimit}
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	return limit, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}

func parseChartOptions(r *http.Request) (chart.Options, error) {
	var opts chart.Options
	var err error
	if opts.Width, err = parseSize(r, "width"); err != nil {
		return chart.Options{}, err
	}
	if opts.Height, err = parseSize(r, "height"); err != nil {
		return chart.Options{}, err
	}
	return opts, nil
}

func parseSize(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < minChartSize || n > maxChartSize {
		return 0, &sizeError{name: name}
	}
	return n, nil
}

type sizeError struct {
	name string
}

func (e *sizeError) Error() string {
	return e.name + " must be between " + strconv.Itoa(minChartSize) + " and " + strconv.Itoa(maxChartSize)
}
