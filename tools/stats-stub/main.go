package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"
)

type counts struct {
	AllPlayers    int64 `json:"all_players"`
	MaliciousBots int64 `json:"malicious_bots"`
}

type region struct {
	id         string
	descriptor string
	counts     counts
}

var (
	mu      sync.Mutex
	hits    int64
	failing bool
	since   time.Time
	rng     = rand.New(rand.NewSource(time.Now().UnixNano()))
	regions = []*region{
		{id: "eu", descriptor: "Europe", counts: counts{AllPlayers: 620, MaliciousBots: 40}},
		{id: "na", descriptor: "North America", counts: counts{AllPlayers: 540, MaliciousBots: 35}},
		{id: "sa", descriptor: "South America", counts: counts{AllPlayers: 120, MaliciousBots: 9}},
		{id: "as", descriptor: "Asia", counts: counts{AllPlayers: 210, MaliciousBots: 14}},
	}
)

func main() {
	since = time.Now().UTC()

	addr := ":8081"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	http.HandleFunc("/api/stats", statsHandler)
	http.HandleFunc("/api/regions", regionsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	// POST /fail toggles 503 responses on /api/stats to exercise the circuit breaker.
	http.HandleFunc("/fail", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		failing = !failing
		state := failing
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "failing=%t\n", state)
	})

	log.Printf("stats-stub listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

// step moves v by up to ±pct percent, never below zero.
func step(v int64, pct float64) int64 {
	delta := (rng.Float64()*2 - 1) * pct * float64(v+10)
	next := v + int64(delta)
	if next < 0 {
		return 0
	}
	return next
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	hits++
	if failing {
		mu.Unlock()
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
		return
	}

	var totals counts
	perRegion := make(map[string]counts, len(regions))
	for _, r := range regions {
		r.counts.AllPlayers = step(r.counts.AllPlayers, 0.03)
		r.counts.MaliciousBots = step(r.counts.MaliciousBots, 0.08)
		if r.counts.MaliciousBots > r.counts.AllPlayers {
			r.counts.MaliciousBots = r.counts.AllPlayers
		}
		perRegion[r.descriptor] = r.counts
		totals.AllPlayers += r.counts.AllPlayers
		totals.MaliciousBots += r.counts.MaliciousBots
	}
	current := hits
	mu.Unlock()

	log.Printf("stats #%d: players=%d bots=%d", current, totals.AllPlayers, totals.MaliciousBots)

	body := map[string]any{
		"response": map[string]any{
			"casual_in_game": map[string]any{
				"totals":  totals,
				"regions": perRegion,
			},
			"since": since.Format(time.RFC3339),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func regionsHandler(w http.ResponseWriter, _ *http.Request) {
	meta := make(map[string]string, len(regions))
	for _, r := range regions {
		meta[r.id] = r.descriptor
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"response": map[string]any{"regions": meta},
	})
}
