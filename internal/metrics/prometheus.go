package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Scheduler metrics
	ticksTotal        prometheus.Counter
	tickErrorsTotal   prometheus.Counter
	samplesAppended   prometheus.Counter
	tickDuration      prometheus.Histogram
	schedulerRunning  prometheus.Gauge
	intervalSeconds   prometheus.Gauge
	reconfiguresTotal prometheus.Counter

	// Window metrics
	windowSize      prometheus.Gauge
	windowCapacity  prometheus.Gauge
	evictionsTotal  prometheus.Counter
	latestPlayers   prometheus.Gauge
	latestMalicious prometheus.Gauge
	latestImpact    prometheus.Gauge

	// Fetcher metrics
	fetchesTotal  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	// Frame bus and hub metrics
	bufferSize       prometheus.Gauge
	framesDropped    prometheus.Counter
	clientsConnected prometheus.Gauge

	// Journal maintenance metrics
	prunedRows    prometheus.Counter
	pruneErrors   prometheus.Counter
	janitorLeader prometheus.Gauge
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
// Metrics that fail to register keep working but are not exported.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initSchedulerMetrics(reg)
	s.initWindowMetrics(reg)
	s.initFetcherMetrics(reg)
	s.initTransportMetrics(reg)
	s.initJournalMetrics(reg)
	return s
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "botgraph_scheduler_ticks_total",
		Help: "Total number of scheduler ticks processed.",
	})
	s.tickErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "botgraph_scheduler_tick_errors_total",
		Help: "Total number of ticks skipped because the fetch failed.",
	})
	s.samplesAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "botgraph_scheduler_samples_appended_total",
		Help: "Total number of samples appended to the window.",
	})
	s.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "botgraph_scheduler_tick_duration_seconds",
		Help:    "Duration of each scheduler tick in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
	s.schedulerRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "botgraph_scheduler_running",
		Help: "1 while periodic polling is active, 0 while stopped.",
	})
	s.intervalSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "botgraph_scheduler_interval_seconds",
		Help: "Current polling interval in seconds.",
	})
	s.reconfiguresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "botgraph_scheduler_reconfigures_total",
		Help: "Total number of successful window reconfigurations.",
	})

	s.register(reg, s.ticksTotal, "botgraph_scheduler_ticks_total")
	s.register(reg, s.tickErrorsTotal, "botgraph_scheduler_tick_errors_total")
	s.register(reg, s.samplesAppended, "botgraph_scheduler_samples_appended_total")
	s.register(reg, s.tickDuration, "botgraph_scheduler_tick_duration_seconds")
	s.register(reg, s.schedulerRunning, "botgraph_scheduler_running")
	s.register(reg, s.intervalSeconds, "botgraph_scheduler_interval_seconds")
	s.register(reg, s.reconfiguresTotal, "botgraph_scheduler_reconfigures_total")
}

func (s *PrometheusSink) initWindowMetrics(reg prometheus.Registerer) {
	s.windowSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "botgraph_window_size",
		Help: "Number of samples currently buffered.",
	})
	s.windowCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "botgraph_window_capacity",
		Help: "Maximum number of samples the window holds.",
	})
	s.evictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "botgraph_window_evictions_total",
		Help: "Total number of samples evicted from the window.",
	})
	s.latestPlayers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "botgraph_latest_players",
		Help: "Total players in the most recent sample.",
	})
	s.latestMalicious = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "botgraph_latest_malicious_bots",
		Help: "Malicious bots in the most recent sample.",
	})
	s.latestImpact = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "botgraph_latest_impact_percent",
		Help: "Malicious bot share of total players in the most recent sample.",
	})

	s.register(reg, s.windowSize, "botgraph_window_size")
	s.register(reg, s.windowCapacity, "botgraph_window_capacity")
	s.register(reg, s.evictionsTotal, "botgraph_window_evictions_total")
	s.register(reg, s.latestPlayers, "botgraph_latest_players")
	s.register(reg, s.latestMalicious, "botgraph_latest_malicious_bots")
	s.register(reg, s.latestImpact, "botgraph_latest_impact_percent")
}

func (s *PrometheusSink) initFetcherMetrics(reg prometheus.Registerer) {
	s.fetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "botgraph_fetcher_requests_total",
		Help: "Total number of upstream requests by endpoint and status class.",
	}, []string{"endpoint", "status_class"})
	s.fetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "botgraph_fetcher_request_duration_seconds",
		Help:    "Upstream request latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"endpoint"})

	s.register(reg, s.fetchesTotal, "botgraph_fetcher_requests_total")
	s.register(reg, s.fetchDuration, "botgraph_fetcher_request_duration_seconds")
}

func (s *PrometheusSink) initTransportMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "botgraph_framebus_buffer_size",
		Help: "Current number of frames waiting in the frame bus.",
	})
	s.framesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "botgraph_framebus_dropped_total",
		Help: "Total number of frames dropped because the bus was full.",
	})
	s.clientsConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "botgraph_websocket_clients",
		Help: "Number of connected browser clients.",
	})

	s.register(reg, s.bufferSize, "botgraph_framebus_buffer_size")
	s.register(reg, s.framesDropped, "botgraph_framebus_dropped_total")
	s.register(reg, s.clientsConnected, "botgraph_websocket_clients")
}

func (s *PrometheusSink) initJournalMetrics(reg prometheus.Registerer) {
	s.prunedRows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "botgraph_journal_pruned_rows_total",
		Help: "Total number of tick journal rows deleted by the janitor.",
	})
	s.pruneErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "botgraph_journal_prune_errors_total",
		Help: "Total number of failed janitor cycles.",
	})
	s.janitorLeader = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "botgraph_janitor_leader",
		Help: "Whether this replica holds the janitor lock (1 = leader, 0 = follower).",
	})

	s.register(reg, s.prunedRows, "botgraph_journal_pruned_rows_total")
	s.register(reg, s.pruneErrors, "botgraph_journal_prune_errors_total")
	s.register(reg, s.janitorLeader, "botgraph_janitor_leader")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Scheduler metrics implementation

func (s *PrometheusSink) TickStarted() {
	s.ticksTotal.Inc()
}

func (s *PrometheusSink) TickCompleted(duration time.Duration, appended bool, err error) {
	s.tickDuration.Observe(duration.Seconds())
	if appended {
		s.samplesAppended.Inc()
	}
	if err != nil {
		s.tickErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) SchedulerRunning(running bool) {
	if running {
		s.schedulerRunning.Set(1)
		return
	}
	s.schedulerRunning.Set(0)
}

func (s *PrometheusSink) IntervalSet(interval time.Duration) {
	s.intervalSeconds.Set(interval.Seconds())
}

func (s *PrometheusSink) Reconfigured() {
	s.reconfiguresTotal.Inc()
}

// Window metrics implementation

func (s *PrometheusSink) WindowSizeUpdate(size int) {
	s.windowSize.Set(float64(size))
}

func (s *PrometheusSink) WindowCapacitySet(capacity int) {
	s.windowCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) SamplesEvicted(n int) {
	if n > 0 {
		s.evictionsTotal.Add(float64(n))
	}
}

func (s *PrometheusSink) LatestSample(total, malicious, impact float64) {
	s.latestPlayers.Set(total)
	s.latestMalicious.Set(malicious)
	s.latestImpact.Set(impact)
}

// Fetcher metrics implementation

func (s *PrometheusSink) FetchCompleted(endpoint, statusClass string, duration time.Duration) {
	s.fetchesTotal.WithLabelValues(endpoint, statusClass).Inc()
	s.fetchDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// Transport metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) FrameDropped() {
	s.framesDropped.Inc()
}

func (s *PrometheusSink) ClientsConnected(n int) {
	s.clientsConnected.Set(float64(n))
}

// Journal maintenance metrics implementation

func (s *PrometheusSink) JournalPruned(rows int64, err error) {
	if err != nil {
		s.pruneErrors.Inc()
		return
	}
	if rows > 0 {
		s.prunedRows.Add(float64(rows))
	}
}

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.janitorLeader.Set(1)
		return
	}
	s.janitorLeader.Set(0)
}
