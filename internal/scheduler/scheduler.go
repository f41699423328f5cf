package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/botgraph/internal/axis"
	"github.com/djlord-it/botgraph/internal/cron"
	"github.com/djlord-it/botgraph/internal/domain"
	"github.com/djlord-it/botgraph/internal/region"
	"github.com/djlord-it/botgraph/internal/window"
)

var (
	ErrInvalidWindow = errors.New("window hours must be a positive finite number")
	ErrUnknownRegion = errors.New("unknown region")
)

const (
	DefaultWindow              = time.Hour
	DefaultMinInterval         = 5 * time.Second
	DefaultMaxRenderablePoints = 1440

	recordTimeout = 5 * time.Second
)

type Fetcher interface {
	FetchStats(ctx context.Context) (domain.Stats, error)
	FetchRegions(ctx context.Context) (domain.RegionMeta, error)
}

type FrameEmitter interface {
	Emit(ctx context.Context, frame domain.Frame) error
}

// TickRecorder receives one record per tick. Errors are logged, never fatal.
type TickRecorder interface {
	RecordTick(ctx context.Context, tick domain.Tick) error
}

// SampleRecorder receives every appended sample. Errors are logged, never fatal.
type SampleRecorder interface {
	RecordSample(ctx context.Context, sample domain.Sample) error
}

// MetricsSink records scheduler and window metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	TickStarted()
	TickCompleted(duration time.Duration, appended bool, err error)
	SchedulerRunning(running bool)
	IntervalSet(interval time.Duration)
	Reconfigured()
	WindowSizeUpdate(size int)
	WindowCapacitySet(capacity int)
	SamplesEvicted(n int)
	LatestSample(total, malicious, impact float64)
}

type Config struct {
	Window              time.Duration
	MinInterval         time.Duration
	MaxRenderablePoints int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.MaxRenderablePoints <= 0 {
		c.MaxRenderablePoints = DefaultMaxRenderablePoints
	}
	return c
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running  bool          `json:"running"`
	Window   time.Duration `json:"window_ns"`
	Interval time.Duration `json:"interval_ns"`
	Capacity int           `json:"capacity"`
	Len      int           `json:"len"`
	Epoch    uint64        `json:"epoch"`
	Ticks    uint64        `json:"ticks"`
}

// Scheduler polls the fetcher on a constant-delay schedule, appends each
// result to the window and emits one frame per successful tick.
// Ticks run strictly one after another on a single goroutine.
type Scheduler struct {
	config    Config
	fetcher   Fetcher
	selection *region.Selection
	window    *window.Window
	estimator *axis.Estimator
	emitter   FrameEmitter

	metrics   MetricsSink    // optional, nil = disabled
	journal   TickRecorder   // optional
	analytics SampleRecorder // optional
	clearAt   cron.Schedule  // optional

	clock       func() time.Time
	scheduleFor func(interval time.Duration) cron.Schedule

	// ctlMu serialises Start, Stop, Clear and Reconfigure so a control
	// operation never observes another one half done.
	ctlMu sync.Mutex

	// emitMu serialises frame construction with emission so frames leave
	// in sequence order.
	emitMu sync.Mutex

	mu        sync.Mutex
	base      context.Context
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	windowDur time.Duration
	interval  time.Duration
	epoch     uint64
	frameSeq  uint64
	tickSeq   uint64
	latest    domain.Frame
}

func New(config Config, fetcher Fetcher, selection *region.Selection, estimator *axis.Estimator, emitter FrameEmitter) *Scheduler {
	config = config.withDefaults()
	interval := IntervalFor(config.Window, config.MinInterval, config.MaxRenderablePoints)
	capacity := window.CapacityFor(config.Window.Seconds(), interval.Seconds())

	s := &Scheduler{
		config:      config,
		fetcher:     fetcher,
		selection:   selection,
		window:      window.New(capacity),
		estimator:   estimator,
		emitter:     emitter,
		clock:       time.Now,
		scheduleFor: cron.Every,
		base:        context.Background(),
		windowDur:   config.Window,
		interval:    interval,
	}
	s.latest = s.frameLocked()
	return s
}

// WithMetrics attaches a metrics sink to the scheduler.
func (s *Scheduler) WithMetrics(sink MetricsSink) *Scheduler {
	s.metrics = sink
	return s
}

// WithJournal records every tick to r.
func (s *Scheduler) WithJournal(r TickRecorder) *Scheduler {
	s.journal = r
	return s
}

// WithAnalytics forwards every appended sample to r.
func (s *Scheduler) WithAnalytics(r SampleRecorder) *Scheduler {
	s.analytics = r
	return s
}

// WithClearSchedule clears the window at every activation of sched while Run is active.
func (s *Scheduler) WithClearSchedule(sched cron.Schedule) *Scheduler {
	s.clearAt = sched
	return s
}

// WithClock overrides the clock used to timestamp samples.
func (s *Scheduler) WithClock(clock func() time.Time) *Scheduler {
	s.clock = clock
	return s
}

// IntervalFor returns max(minInterval, window / maxPoints) rounded up to a
// whole second, the granularity of the tick schedule.
func IntervalFor(window, minInterval time.Duration, maxPoints int) time.Duration {
	if maxPoints < 1 {
		maxPoints = 1
	}
	interval := window / time.Duration(maxPoints)
	if interval < minInterval {
		interval = minInterval
	}
	if rem := interval % time.Second; rem != 0 {
		interval += time.Second - rem
	}
	return interval
}

// Run loads region metadata, starts polling and blocks until ctx is
// cancelled. It waits for an in-flight tick before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	if err := s.LoadRegions(ctx); err != nil {
		log.Printf("scheduler: region metadata unavailable, using global totals: %v", err)
	}

	s.Start()

	if s.clearAt != nil {
		go cron.Loop(ctx, s.clearAt, nil, func(ctx context.Context, at time.Time) {
			log.Printf("scheduler: scheduled clear at %s", at.Format(time.RFC3339))
			s.Clear()
		})
	}

	<-ctx.Done()

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	s.Stop()
	if done != nil {
		<-done
	}
	log.Println("scheduler: stopped")
	return ctx.Err()
}

// LoadRegions refreshes region metadata. On failure the selection is left
// as it was.
func (s *Scheduler) LoadRegions(ctx context.Context) error {
	meta, err := s.fetcher.FetchRegions(ctx)
	if err != nil {
		return fmt.Errorf("load regions: %w", err)
	}
	if len(meta) == 0 {
		return errors.New("load regions: upstream returned no regions")
	}
	s.selection.SetMeta(meta)
	log.Printf("scheduler: loaded %d regions", len(meta))
	return nil
}

// Start begins polling: one tick immediately, then one per interval.
// It reports false if the scheduler was already running.
func (s *Scheduler) Start() bool {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	return s.start("started")
}

// Resume is Start after a manual Stop.
func (s *Scheduler) Resume() bool {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	return s.start("resumed")
}

// start launches the tick loop. Callers hold s.ctlMu.
func (s *Scheduler) start(verb string) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(s.base)
	prev := s.done
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done
	interval := s.interval
	capacity := s.window.Capacity()
	s.mu.Unlock()

	log.Printf("scheduler: %s, interval=%s capacity=%d", verb, interval, capacity)
	if s.metrics != nil {
		s.metrics.SchedulerRunning(true)
		s.metrics.IntervalSet(interval)
		s.metrics.WindowCapacitySet(capacity)
	}

	go s.loop(ctx, interval, prev, done)
	return true
}

// Stop cancels future ticks. A tick already fetching runs to completion.
// It reports whether the scheduler was running.
func (s *Scheduler) Stop() bool {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	return s.stop()
}

// stop cancels the tick loop. Callers hold s.ctlMu.
func (s *Scheduler) stop() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	s.cancel()
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	log.Println("scheduler: paused")
	if s.metrics != nil {
		s.metrics.SchedulerRunning(false)
	}
	s.publish()
	return true
}

// publish re-emits the current window so viewers see a state change.
func (s *Scheduler) publish() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	frame := s.frameLocked()
	s.latest = frame
	s.mu.Unlock()

	s.emit(frame)
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, prev <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	// A restart waits for the previous loop so ticks never overlap.
	if prev != nil {
		<-prev
	}
	if ctx.Err() != nil {
		return
	}

	s.tick(ctx)
	cron.Loop(ctx, s.scheduleFor(interval), nil, func(ctx context.Context, _ time.Time) {
		s.tick(ctx)
	})
}

// Clear empties the window and emits an empty frame.
func (s *Scheduler) Clear() {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	frame := s.resetLocked()
	s.mu.Unlock()

	log.Printf("scheduler: window cleared, epoch=%d", frame.Epoch)
	s.emit(frame)
}

// Reconfigure switches to a window of the given length. Polling stops, the
// window is cleared, interval and capacity are recomputed and polling starts
// again with the new interval, whether or not it was running before.
func (s *Scheduler) Reconfigure(hours float64) error {
	windowDur, ok := domain.WindowDuration(hours)
	if !ok {
		return fmt.Errorf("%w: %v", ErrInvalidWindow, hours)
	}

	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	s.stop()

	interval := IntervalFor(windowDur, s.config.MinInterval, s.config.MaxRenderablePoints)
	capacity := window.CapacityFor(windowDur.Seconds(), interval.Seconds())

	s.emitMu.Lock()
	s.mu.Lock()
	s.windowDur = windowDur
	s.interval = interval
	s.window.SetCapacity(capacity)
	frame := s.resetLocked()
	s.mu.Unlock()
	s.emit(frame)
	s.emitMu.Unlock()

	log.Printf("scheduler: reconfigured, window=%s interval=%s capacity=%d", windowDur, interval, capacity)
	if s.metrics != nil {
		s.metrics.Reconfigured()
		s.metrics.IntervalSet(interval)
		s.metrics.WindowCapacitySet(capacity)
	}

	s.start("restarted")
	return nil
}

// SetRegion includes or excludes a region and clears the window.
func (s *Scheduler) SetRegion(id string, include bool) error {
	if !s.selection.Set(id, include) {
		return fmt.Errorf("%w: %s", ErrUnknownRegion, id)
	}
	log.Printf("scheduler: region %s included=%t", id, include)
	s.Clear()
	return nil
}

// ToggleRegion flips a region's inclusion and clears the window.
func (s *Scheduler) ToggleRegion(id string) (bool, error) {
	included, ok := s.selection.Toggle(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownRegion, id)
	}
	log.Printf("scheduler: region %s included=%t", id, included)
	s.Clear()
	return included, nil
}

// LatestFrame returns the most recently built frame.
func (s *Scheduler) LatestFrame() domain.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:  s.running,
		Window:   s.windowDur,
		Interval: s.interval,
		Capacity: s.window.Capacity(),
		Len:      s.window.Len(),
		Epoch:    s.epoch,
		Ticks:    s.tickSeq,
	}
}

// Regions returns the selection the scheduler aggregates over.
func (s *Scheduler) Regions() *region.Selection {
	return s.selection
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock()

	s.mu.Lock()
	epoch := s.epoch
	s.tickSeq++
	tick := domain.Tick{
		ID:        uuid.New(),
		Seq:       s.tickSeq,
		Epoch:     epoch,
		StartedAt: now.UTC(),
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.TickStarted()
	}
	start := time.Now()

	// The fetch outlives a Stop; the fetcher applies its own timeout.
	fetchCtx := context.WithoutCancel(ctx)

	stats, err := s.fetcher.FetchStats(fetchCtx)
	if err != nil {
		err = fmt.Errorf("fetch stats: %w", err)
		log.Printf("scheduler: tick=%d skipped: %v", tick.Seq, err)
	} else {
		tick.Appended = s.commit(fetchCtx, epoch, domain.NewSample(now, s.selection.Aggregate(stats)))
	}

	tick.Duration = time.Since(start)
	if err != nil {
		tick.Error = err.Error()
	}
	if s.metrics != nil {
		s.metrics.TickCompleted(tick.Duration, tick.Appended, err)
	}
	if s.journal != nil {
		jctx, cancel := context.WithTimeout(fetchCtx, recordTimeout)
		if jerr := s.journal.RecordTick(jctx, tick); jerr != nil {
			log.Printf("scheduler: journal tick=%d: %v", tick.Seq, jerr)
		}
		cancel()
	}
}

// commit appends sample if the window is still in the given epoch, emits
// the resulting frame and then forwards the sample to analytics.
func (s *Scheduler) commit(ctx context.Context, epoch uint64, sample domain.Sample) bool {
	sample = sample.Normalized()

	s.emitMu.Lock()
	s.mu.Lock()
	if s.epoch != epoch {
		current := s.epoch
		s.mu.Unlock()
		s.emitMu.Unlock()
		log.Printf("scheduler: discarding sample from epoch=%d, window is at epoch=%d", epoch, current)
		return false
	}
	evicted := s.window.Append(sample)
	size := s.window.Len()
	frame := s.frameLocked()
	s.latest = frame
	s.mu.Unlock()
	s.emit(frame)
	s.emitMu.Unlock()

	if s.metrics != nil {
		s.metrics.WindowSizeUpdate(size)
		if evicted > 0 {
			s.metrics.SamplesEvicted(evicted)
		}
		s.metrics.LatestSample(sample.Total, sample.Malicious, sample.Impact)
	}
	if s.analytics != nil {
		actx, cancel := context.WithTimeout(ctx, recordTimeout)
		if err := s.analytics.RecordSample(actx, sample); err != nil {
			log.Printf("scheduler: analytics: %v", err)
		}
		cancel()
	}
	return true
}

// resetLocked clears the window, starts a new epoch and returns the empty
// frame. Callers hold s.mu.
func (s *Scheduler) resetLocked() domain.Frame {
	s.window.Clear()
	s.epoch++
	frame := s.frameLocked()
	s.latest = frame
	if s.metrics != nil {
		s.metrics.WindowSizeUpdate(0)
	}
	return frame
}

// frameLocked builds a frame from the current window. Callers hold s.mu.
func (s *Scheduler) frameLocked() domain.Frame {
	labels, cols := s.window.Columns()
	s.frameSeq++
	return domain.Frame{
		Seq:             s.frameSeq,
		Epoch:           s.epoch,
		Labels:          labels,
		Series:          cols,
		Ranges:          s.estimator.Estimate(cols),
		IntervalSeconds: s.interval.Seconds(),
		Capacity:        s.window.Capacity(),
		Running:         s.running,
	}
}

// emit hands frame to the emitter. Callers hold s.emitMu.
func (s *Scheduler) emit(frame domain.Frame) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(context.Background(), frame); err != nil {
		log.Printf("scheduler: emit frame seq=%d: %v", frame.Seq, err)
	}
}
