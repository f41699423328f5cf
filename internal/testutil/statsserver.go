package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/djlord-it/botgraph/internal/domain"
)

// StatsServer is an httptest stand-in for the upstream statistics API.
// It serves /api/stats and /api/regions.
type StatsServer struct {
	*httptest.Server

	mu           sync.Mutex
	totals       domain.Counts
	regions      map[string]domain.Counts
	meta         domain.RegionMeta
	statsStatus  int
	regionStatus int
	statsHits    int
}

// NewStatsServer starts a server that is closed when the test completes.
func NewStatsServer(t *testing.T) *StatsServer {
	t.Helper()
	s := &StatsServer{
		statsStatus:  http.StatusOK,
		regionStatus: http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.serveStats)
	mux.HandleFunc("/api/regions", s.serveRegions)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// StatsURL returns the stats endpoint URL.
func (s *StatsServer) StatsURL() string { return s.URL + "/api/stats" }

// RegionsURL returns the region metadata endpoint URL.
func (s *StatsServer) RegionsURL() string { return s.URL + "/api/regions" }

// SetTotals sets the global counts.
func (s *StatsServer) SetTotals(c domain.Counts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals = c
}

// SetRegions sets per-region counts (keyed by descriptor) and metadata.
func (s *StatsServer) SetRegions(meta domain.RegionMeta, counts map[string]domain.Counts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
	s.regions = counts
}

// SetStatsStatus makes /api/stats answer with status. Non-2xx statuses get a plain body.
func (s *StatsServer) SetStatsStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsStatus = status
}

// SetRegionsStatus makes /api/regions answer with status.
func (s *StatsServer) SetRegionsStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regionStatus = status
}

// StatsHits returns how many times /api/stats was requested.
func (s *StatsServer) StatsHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsHits
}

func (s *StatsServer) serveStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.statsHits++
	status := s.statsStatus
	body := map[string]any{
		"response": map[string]any{
			"casual_in_game": map[string]any{
				"totals":  s.totals,
				"regions": s.regions,
			},
		},
	}
	s.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "upstream unavailable", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func (s *StatsServer) serveRegions(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status := s.regionStatus
	body := map[string]any{
		"response": map[string]any{"regions": s.meta},
	}
	s.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "upstream unavailable", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}
