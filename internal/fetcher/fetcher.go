// Package fetcher reads current player counts and region metadata from the
// upstream statistics API.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/djlord-it/botgraph/internal/domain"
	"github.com/djlord-it/botgraph/internal/metrics"
)

// DefaultTimeout bounds a single upstream request when none is configured.
const DefaultTimeout = 10 * time.Second

// maxBodySize caps how much of an upstream response is read (4MB).
const maxBodySize = 4 << 20

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Breaker guards an endpoint against repeated failures.
type Breaker interface {
	Allow(endpoint string) error
	RecordSuccess(endpoint string)
	RecordFailure(endpoint string)
}

// MetricsSink records upstream request outcomes.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	FetchCompleted(endpoint, statusClass string, duration time.Duration)
}

type Client struct {
	client     *http.Client
	statsURL   string
	regionsURL string
	timeout    time.Duration
	breaker    Breaker     // optional, nil = disabled
	metrics    MetricsSink // optional, nil = disabled
}

// New creates a client for the given endpoints. regionsURL may be empty when
// the upstream has no region metadata.
func New(statsURL, regionsURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		client:     &http.Client{},
		statsURL:   statsURL,
		regionsURL: regionsURL,
		timeout:    timeout,
	}
}

// WithBreaker attaches a circuit breaker keyed by endpoint URL.
func (c *Client) WithBreaker(b Breaker) *Client {
	c.breaker = b
	return c
}

// WithMetrics attaches a metrics sink to the client.
func (c *Client) WithMetrics(sink MetricsSink) *Client {
	c.metrics = sink
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

type countsPayload struct {
	AllPlayers    int64 `json:"all_players"`
	MaliciousBots int64 `json:"malicious_bots"`
}

type statsEnvelope struct {
	Response struct {
		CasualInGame *struct {
			Totals  *countsPayload           `json:"totals"`
			Regions map[string]countsPayload `json:"regions"`
		} `json:"casual_in_game"`
	} `json:"response"`
}

type regionsEnvelope struct {
	Response struct {
		Regions map[string]string `json:"regions"`
	} `json:"response"`
}

// FetchStats returns the current global and per-region counts.
func (c *Client) FetchStats(ctx context.Context) (domain.Stats, error) {
	var env statsEnvelope
	if err := c.getJSON(ctx, metrics.EndpointStats, c.statsURL, &env); err != nil {
		return domain.Stats{}, err
	}

	game := env.Response.CasualInGame
	if game == nil || game.Totals == nil {
		return domain.Stats{}, errors.New("decode stats: missing response.casual_in_game.totals")
	}

	stats := domain.Stats{
		Totals: domain.Counts{AllPlayers: game.Totals.AllPlayers, MaliciousBots: game.Totals.MaliciousBots},
	}
	if len(game.Regions) > 0 {
		stats.Regions = make(map[string]domain.Counts, len(game.Regions))
		for desc, rc := range game.Regions {
			stats.Regions[desc] = domain.Counts{AllPlayers: rc.AllPlayers, MaliciousBots: rc.MaliciousBots}
		}
	}
	return stats, nil
}

// FetchRegions returns the region id to descriptor mapping.
func (c *Client) FetchRegions(ctx context.Context) (domain.RegionMeta, error) {
	if c.regionsURL == "" {
		return nil, errors.New("regions endpoint not configured")
	}

	var env regionsEnvelope
	if err := c.getJSON(ctx, metrics.EndpointRegions, c.regionsURL, &env); err != nil {
		return nil, err
	}
	if env.Response.Regions == nil {
		return nil, errors.New("decode regions: missing response.regions")
	}
	if len(env.Response.Regions) == 0 {
		return nil, errors.New("decode regions: response.regions is empty")
	}
	return domain.RegionMeta(env.Response.Regions), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, url string, dst any) error {
	if err := c.allow(url); err != nil {
		c.record(endpoint, 0, err, 0)
		return fmt.Errorf("%s: %w", endpoint, err)
	}

	start := time.Now()
	status, err := c.do(ctx, url, dst)
	duration := time.Since(start)

	c.record(endpoint, status, err, duration)
	if err != nil {
		c.failure(url)
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	c.success(url)
	return nil
}

func (c *Client) do(ctx context.Context, url string, dst any) (int, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(dst); err != nil {
		return resp.StatusCode, fmt.Errorf("decode: %w", err)
	}
	return resp.StatusCode, nil
}

func (c *Client) allow(url string) error {
	if c.breaker == nil {
		return nil
	}
	return c.breaker.Allow(url)
}

func (c *Client) success(url string) {
	if c.breaker != nil {
		c.breaker.RecordSuccess(url)
	}
}

func (c *Client) failure(url string) {
	if c.breaker != nil {
		c.breaker.RecordFailure(url)
	}
}

func (c *Client) record(endpoint string, status int, err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	class := metrics.ClassifyStatus(status, err)
	if err != nil && class == metrics.StatusClass2xx {
		class = metrics.StatusClassOtherError
	}
	c.metrics.FetchCompleted(endpoint, class, d)
}
