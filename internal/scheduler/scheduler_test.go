package scheduler

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/djlord-it/botgraph/internal/axis"
	"github.com/djlord-it/botgraph/internal/cron"
	"github.com/djlord-it/botgraph/internal/domain"
	"github.com/djlord-it/botgraph/internal/region"
	"github.com/djlord-it/botgraph/internal/testutil"
)

// mockFetcher returns queued results in order, repeating the last one.
type mockFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
	meta    domain.RegionMeta
	metaErr error
	gate    chan struct{} // if set, FetchStats blocks until it receives
}

type fetchResult struct {
	stats domain.Stats
	err   error
}

func (f *mockFetcher) push(total, bots int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, fetchResult{stats: domain.Stats{
		Totals: domain.Counts{AllPlayers: total, MaliciousBots: bots},
	}})
}

func (f *mockFetcher) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, fetchResult{err: err})
}

func (f *mockFetcher) FetchStats(ctx context.Context) (domain.Stats, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return domain.Stats{Totals: domain.Counts{AllPlayers: 1}}, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.stats, r.err
}

func (f *mockFetcher) FetchRegions(ctx context.Context) (domain.RegionMeta, error) {
	return f.meta, f.metaErr
}

func (f *mockFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type mockEmitter struct {
	mu     sync.Mutex
	frames []domain.Frame

	// holdNext, when set, blocks the next Emit: entered is closed on arrival
	// and the call returns after release is closed.
	entered chan struct{}
	release chan struct{}
}

func (e *mockEmitter) holdNext() (entered, release chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entered = make(chan struct{})
	e.release = make(chan struct{})
	return e.entered, e.release
}

func (e *mockEmitter) Emit(ctx context.Context, frame domain.Frame) error {
	e.mu.Lock()
	entered, release := e.entered, e.release
	e.entered, e.release = nil, nil
	e.mu.Unlock()
	if entered != nil {
		close(entered)
		<-release
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = append(e.frames, frame)
	return nil
}

func (e *mockEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.frames)
}

func (e *mockEmitter) last() domain.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames[len(e.frames)-1]
}

type mockJournal struct {
	mu    sync.Mutex
	ticks []domain.Tick
}

func (j *mockJournal) RecordTick(ctx context.Context, tick domain.Tick) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ticks = append(j.ticks, tick)
	return nil
}

type mockAnalytics struct {
	mu      sync.Mutex
	samples []domain.Sample
}

func (a *mockAnalytics) RecordSample(ctx context.Context, s domain.Sample) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples = append(a.samples, s)
	return nil
}

type mockMetrics struct {
	mu           sync.Mutex
	started      int
	completed    int
	failed       int
	reconfigured int
	running      bool
	interval     time.Duration
	capacity     int
	size         int
	evicted      int
}

func (m *mockMetrics) TickStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *mockMetrics) TickCompleted(d time.Duration, appended bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed++
	if err != nil {
		m.failed++
	}
}

func (m *mockMetrics) SchedulerRunning(r bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = r
}

func (m *mockMetrics) IntervalSet(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interval = d
}

func (m *mockMetrics) Reconfigured() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconfigured++
}

func (m *mockMetrics) WindowSizeUpdate(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.size = n
}

func (m *mockMetrics) WindowCapacitySet(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capacity = n
}

func (m *mockMetrics) SamplesEvicted(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evicted += n
}

func (m *mockMetrics) LatestSample(total, malicious, impact float64) {}

type delaySchedule time.Duration

func (d delaySchedule) Next(after time.Time) time.Time { return after.Add(time.Duration(d)) }

var testTime = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *mockFetcher, *mockEmitter) {
	t.Helper()
	f := &mockFetcher{}
	e := &mockEmitter{}
	clock := testutil.NewFakeClock(testTime)
	s := New(cfg, f, region.NewSelection(), axis.NewEstimator(nil), e).WithClock(func() time.Time {
		now := clock.Now()
		clock.Advance(5 * time.Second)
		return now
	})
	return s, f, e
}

func TestIntervalFor(t *testing.T) {
	tests := []struct {
		name   string
		window time.Duration
		want   time.Duration
	}{
		{"one hour uses minimum", time.Hour, 5 * time.Second},
		{"two hours", 2 * time.Hour, 5 * time.Second},
		{"three hours rounds up", 3 * time.Hour, 8 * time.Second},
		{"one day", 24 * time.Hour, 60 * time.Second},
		{"one week", 7 * 24 * time.Hour, 420 * time.Second},
		{"half hour", 30 * time.Minute, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IntervalFor(tt.window, 5*time.Second, 1440); got != tt.want {
				t.Errorf("IntervalFor(%v) = %v, want %v", tt.window, got, tt.want)
			}
		})
	}
}

func TestIntervalFor_RoundsFractionalMinimum(t *testing.T) {
	if got := IntervalFor(time.Hour, 1500*time.Millisecond, 1440); got != 3*time.Second {
		t.Errorf("IntervalFor(1h, 1.5s) = %v, want 3s", got)
	}
	if got := IntervalFor(10*time.Minute, 1500*time.Millisecond, 1440); got != 2*time.Second {
		t.Errorf("IntervalFor(10m, 1.5s) = %v, want 2s", got)
	}
}

func TestNew_Defaults(t *testing.T) {
	s, _, _ := newTestScheduler(t, Config{})
	st := s.Status()
	if st.Interval != 5*time.Second {
		t.Errorf("Interval = %v, want 5s", st.Interval)
	}
	if st.Capacity != 720 {
		t.Errorf("Capacity = %d, want 720", st.Capacity)
	}
	if st.Running {
		t.Error("new scheduler should not be running")
	}
	if f := s.LatestFrame(); len(f.Labels) != 0 {
		t.Errorf("initial frame has %d labels, want 0", len(f.Labels))
	}
}

func TestTick_AppendsAndEmitsFrame(t *testing.T) {
	s, f, e := newTestScheduler(t, Config{})
	f.push(1000, 100)

	s.tick(context.Background())

	if e.count() != 1 {
		t.Fatalf("emitted %d frames, want 1", e.count())
	}
	frame := e.last()
	if len(frame.Labels) != 1 || frame.Labels[0] != "10:00:00" {
		t.Errorf("Labels = %v, want [10:00:00]", frame.Labels)
	}
	checks := map[domain.Series]float64{
		domain.SeriesTotal:     1000,
		domain.SeriesHumans:    900,
		domain.SeriesMalicious: 100,
		domain.SeriesImpact:    10,
	}
	for series, want := range checks {
		if got := frame.Series[series]; len(got) != 1 || got[0] != want {
			t.Errorf("%s = %v, want [%v]", series, got, want)
		}
	}
	if len(frame.Ranges) != len(domain.AllAxisGroups) {
		t.Errorf("got %d ranges, want %d", len(frame.Ranges), len(domain.AllAxisGroups))
	}
	if frame.IntervalSeconds != 5 {
		t.Errorf("IntervalSeconds = %v, want 5", frame.IntervalSeconds)
	}
	if got := s.LatestFrame(); got.Seq != frame.Seq {
		t.Errorf("LatestFrame().Seq = %d, want %d", got.Seq, frame.Seq)
	}
}

func TestTick_EvictsOldest(t *testing.T) {
	// 15s window at a 5s interval holds three samples.
	s, f, e := newTestScheduler(t, Config{Window: 15 * time.Second})
	m := &mockMetrics{}
	s.WithMetrics(m)

	for i := int64(1); i <= 5; i++ {
		f.push(i*100, 0)
	}
	for i := 0; i < 5; i++ {
		s.tick(context.Background())
	}

	frame := e.last()
	want := []float64{300, 400, 500}
	got := frame.Series[domain.SeriesTotal]
	if len(got) != len(want) {
		t.Fatalf("total = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("total[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if len(frame.Labels) != 3 || frame.Labels[0] != "10:00:10" || frame.Labels[2] != "10:00:20" {
		t.Errorf("Labels = %v", frame.Labels)
	}
	if m.evicted != 2 {
		t.Errorf("evicted = %d, want 2", m.evicted)
	}
}

func TestTick_FetchFailureSkipped(t *testing.T) {
	s, f, e := newTestScheduler(t, Config{})
	j := &mockJournal{}
	m := &mockMetrics{}
	s.WithJournal(j).WithMetrics(m)

	f.fail(errors.New("upstream down"))
	f.push(500, 50)

	s.tick(context.Background())
	if e.count() != 0 {
		t.Errorf("failed tick emitted %d frames, want 0", e.count())
	}
	if s.Status().Len != 0 {
		t.Errorf("window len = %d after failed tick, want 0", s.Status().Len)
	}

	s.tick(context.Background())
	if e.count() != 1 {
		t.Errorf("emitted %d frames after recovery, want 1", e.count())
	}

	if len(j.ticks) != 2 {
		t.Fatalf("journal has %d ticks, want 2", len(j.ticks))
	}
	if j.ticks[0].Appended || j.ticks[0].Error == "" {
		t.Errorf("first tick = %+v, want failed", j.ticks[0])
	}
	if !j.ticks[1].Appended || j.ticks[1].Error != "" {
		t.Errorf("second tick = %+v, want appended", j.ticks[1])
	}
	if j.ticks[0].Seq != 1 || j.ticks[1].Seq != 2 {
		t.Errorf("tick seqs = %d,%d, want 1,2", j.ticks[0].Seq, j.ticks[1].Seq)
	}
	if m.started != 2 || m.completed != 2 || m.failed != 1 {
		t.Errorf("metrics started=%d completed=%d failed=%d", m.started, m.completed, m.failed)
	}
}

func TestTick_ForwardsToAnalytics(t *testing.T) {
	s, f, _ := newTestScheduler(t, Config{})
	a := &mockAnalytics{}
	s.WithAnalytics(a)
	f.push(200, 20)

	s.tick(context.Background())

	if len(a.samples) != 1 || a.samples[0].Total != 200 || a.samples[0].Impact != 10 {
		t.Errorf("analytics samples = %+v", a.samples)
	}
}

func TestTick_StaleEpochDiscarded(t *testing.T) {
	s, f, e := newTestScheduler(t, Config{})
	gate := make(chan struct{})
	f.gate = gate
	f.push(1000, 10)

	done := make(chan struct{})
	go func() {
		s.tick(context.Background())
		close(done)
	}()

	// Clear while the fetch is in flight.
	time.Sleep(20 * time.Millisecond)
	s.Clear()
	close(gate)
	<-done

	if s.Status().Len != 0 {
		t.Errorf("window len = %d, want 0 (stale sample should be dropped)", s.Status().Len)
	}
	if e.count() != 1 {
		t.Fatalf("emitted %d frames, want only the clear frame", e.count())
	}
	if len(e.last().Labels) != 0 {
		t.Errorf("clear frame has %d labels", len(e.last().Labels))
	}
}

func TestClear_EmitsEmptyFrame(t *testing.T) {
	s, f, e := newTestScheduler(t, Config{})
	f.push(100, 1)
	s.tick(context.Background())
	s.tick(context.Background())

	before := s.Status().Epoch
	s.Clear()

	if s.Status().Len != 0 {
		t.Errorf("len = %d after Clear, want 0", s.Status().Len)
	}
	if s.Status().Epoch != before+1 {
		t.Errorf("epoch = %d, want %d", s.Status().Epoch, before+1)
	}
	frame := e.last()
	if len(frame.Labels) != 0 {
		t.Errorf("clear frame labels = %v", frame.Labels)
	}
	if r := frame.Ranges[domain.AxisAllPlayers]; r.Min != 0 || r.Max != 500 {
		t.Errorf("empty all_players range = %+v, want [0,500]", r)
	}

	// Appends resume from an empty window.
	s.tick(context.Background())
	if got := len(e.last().Labels); got != 1 {
		t.Errorf("labels after clear+tick = %d, want 1", got)
	}
}

func TestReconfigure_Invalid(t *testing.T) {
	s, f, _ := newTestScheduler(t, Config{})
	f.push(100, 1)
	s.tick(context.Background())

	for _, hours := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1), 1e12, float64(math.MaxInt64) / float64(time.Hour)} {
		if err := s.Reconfigure(hours); !errors.Is(err, ErrInvalidWindow) {
			t.Errorf("Reconfigure(%v) = %v, want ErrInvalidWindow", hours, err)
		}
	}

	st := s.Status()
	if st.Interval != 5*time.Second || st.Len != 1 || st.Window != time.Hour {
		t.Errorf("rejected reconfigure changed state: %+v", st)
	}
}

func TestReconfigure_ClearsAndResizes(t *testing.T) {
	s, f, e := newTestScheduler(t, Config{})
	m := &mockMetrics{}
	s.WithMetrics(m)
	s.scheduleFor = func(time.Duration) cron.Schedule { return delaySchedule(time.Hour) }
	f.push(100, 1)
	s.tick(context.Background())

	// Hold fetches from the restarted loop so the window stays empty.
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	defer close(gate)
	defer s.Stop()

	if err := s.Reconfigure(24); err != nil {
		t.Fatalf("Reconfigure(24): %v", err)
	}

	st := s.Status()
	if st.Interval != 60*time.Second {
		t.Errorf("Interval = %v, want 60s", st.Interval)
	}
	if st.Capacity != 1440 {
		t.Errorf("Capacity = %d, want 1440", st.Capacity)
	}
	if st.Len != 0 {
		t.Errorf("Len = %d, want 0", st.Len)
	}
	frame := e.last()
	if len(frame.Labels) != 0 || frame.IntervalSeconds != 60 || frame.Capacity != 1440 {
		t.Errorf("reconfigure frame = %+v", frame)
	}
	if m.reconfigured != 1 || m.interval != 60*time.Second || m.capacity != 1440 {
		t.Errorf("metrics reconfigured=%d interval=%v capacity=%d", m.reconfigured, m.interval, m.capacity)
	}

	if err := s.Reconfigure(1); err != nil {
		t.Fatalf("Reconfigure(1): %v", err)
	}
	if got := s.Interval(); got != 5*time.Second {
		t.Errorf("Interval = %v after Reconfigure(1), want 5s", got)
	}
}

func TestStart_FiresImmediatelyThenPeriodically(t *testing.T) {
	s, f, e := newTestScheduler(t, Config{})
	s.scheduleFor = func(time.Duration) cron.Schedule { return delaySchedule(10 * time.Millisecond) }

	if !s.Start() {
		t.Fatal("Start() = false, want true")
	}
	defer s.Stop()
	if s.Start() {
		t.Error("second Start() = true, want false")
	}

	if !testutil.Eventually(t, 2*time.Second, func() bool { return e.count() >= 3 }) {
		t.Fatalf("emitted %d frames, want at least 3", e.count())
	}
	if f.callCount() < 3 {
		t.Errorf("fetch calls = %d", f.callCount())
	}
	if !e.last().Running {
		t.Error("frames emitted while running should report Running")
	}
}

func TestStart_FirstTickIsImmediate(t *testing.T) {
	s, _, e := newTestScheduler(t, Config{})
	s.scheduleFor = func(time.Duration) cron.Schedule { return delaySchedule(time.Hour) }

	s.Start()
	defer s.Stop()

	if !testutil.Eventually(t, time.Second, func() bool { return e.count() == 1 }) {
		t.Fatalf("emitted %d frames, want 1 immediately", e.count())
	}
}

func TestStopAndResume(t *testing.T) {
	s, f, e := newTestScheduler(t, Config{})
	m := &mockMetrics{}
	s.WithMetrics(m)
	s.scheduleFor = func(time.Duration) cron.Schedule { return delaySchedule(10 * time.Millisecond) }

	s.Start()
	testutil.Eventually(t, time.Second, func() bool { return f.callCount() >= 2 })

	if !s.Stop() {
		t.Fatal("Stop() = false, want true")
	}
	if s.Stop() {
		t.Error("second Stop() = true, want false")
	}
	if s.Running() || m.running {
		t.Error("scheduler should report stopped")
	}
	if e.last().Running || s.LatestFrame().Running {
		t.Error("Stop should publish a frame with Running=false")
	}

	time.Sleep(30 * time.Millisecond)
	calls := f.callCount()
	time.Sleep(50 * time.Millisecond)
	if f.callCount() != calls {
		t.Errorf("fetch calls grew from %d to %d after Stop", calls, f.callCount())
	}

	if !s.Resume() {
		t.Fatal("Resume() = false, want true")
	}
	defer s.Stop()
	if !testutil.Eventually(t, time.Second, func() bool { return f.callCount() > calls }) {
		t.Error("no ticks after Resume")
	}
}

func TestReconfigure_RestartsWhenRunning(t *testing.T) {
	s, _, _ := newTestScheduler(t, Config{})
	s.scheduleFor = func(time.Duration) cron.Schedule { return delaySchedule(time.Hour) }

	s.Start()
	defer s.Stop()

	if err := s.Reconfigure(2); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if !s.Running() {
		t.Error("scheduler should be running after reconfigure")
	}
}

func TestReconfigure_StartsStoppedScheduler(t *testing.T) {
	s, _, _ := newTestScheduler(t, Config{})
	s.scheduleFor = func(time.Duration) cron.Schedule { return delaySchedule(time.Hour) }
	defer s.Stop()

	if s.Running() {
		t.Fatal("new scheduler should not be running")
	}
	if err := s.Reconfigure(24); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	st := s.Status()
	if !st.Running || st.Interval != 60*time.Second {
		t.Errorf("after Reconfigure(24): running=%t interval=%v, want running at 60s", st.Running, st.Interval)
	}
}

func TestReconfigure_ConcurrentStartUsesNewInterval(t *testing.T) {
	s, _, e := newTestScheduler(t, Config{})

	var mu sync.Mutex
	var intervals []time.Duration
	s.scheduleFor = func(d time.Duration) cron.Schedule {
		mu.Lock()
		intervals = append(intervals, d)
		mu.Unlock()
		return delaySchedule(time.Hour)
	}
	lastInterval := func() time.Duration {
		mu.Lock()
		defer mu.Unlock()
		if len(intervals) == 0 {
			return 0
		}
		return intervals[len(intervals)-1]
	}

	s.Start()
	defer s.Stop()
	if !testutil.Eventually(t, time.Second, func() bool { return lastInterval() == 5*time.Second }) {
		t.Fatal("first loop never scheduled")
	}

	// Park Reconfigure inside its stop notification, then race a Start.
	entered, release := e.holdNext()
	reconfigured := make(chan error, 1)
	go func() { reconfigured <- s.Reconfigure(24) }()
	<-entered

	started := make(chan bool, 1)
	go func() { started <- s.Start() }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-reconfigured; err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if <-started {
		t.Error("Start() = true while Reconfigure owned the scheduler, want false")
	}

	if !testutil.Eventually(t, time.Second, func() bool { return lastInterval() == 60*time.Second }) {
		t.Fatalf("running loop interval = %v, want 60s", lastInterval())
	}
	if got := s.Status().Interval; got != 60*time.Second {
		t.Errorf("Status().Interval = %v, want 60s", got)
	}
	time.Sleep(20 * time.Millisecond)
	if got := lastInterval(); got != 60*time.Second {
		t.Errorf("running loop interval = %v, want 60s", got)
	}
}

func TestRegions_ToggleClearsWindow(t *testing.T) {
	s, f, e := newTestScheduler(t, Config{})
	f.meta = domain.RegionMeta{"1": "eu-west", "2": "us-east"}
	if err := s.LoadRegions(context.Background()); err != nil {
		t.Fatalf("LoadRegions: %v", err)
	}

	f.mu.Lock()
	f.results = []fetchResult{{stats: domain.Stats{
		Totals: domain.Counts{AllPlayers: 300, MaliciousBots: 30},
		Regions: map[string]domain.Counts{
			"eu-west": {AllPlayers: 100, MaliciousBots: 10},
			"us-east": {AllPlayers: 200, MaliciousBots: 20},
		},
	}}}
	f.mu.Unlock()

	s.tick(context.Background())
	if got := e.last().Series[domain.SeriesTotal]; got[0] != 300 {
		t.Errorf("total with all regions = %v, want 300", got[0])
	}

	included, err := s.ToggleRegion("2")
	if err != nil || included {
		t.Fatalf("ToggleRegion(2) = %v, %v", included, err)
	}
	if s.Status().Len != 0 {
		t.Error("toggle should clear the window")
	}

	s.tick(context.Background())
	if got := e.last().Series[domain.SeriesTotal]; len(got) != 1 || got[0] != 100 {
		t.Errorf("total with eu-west only = %v, want [100]", got)
	}

	if _, err := s.ToggleRegion("99"); !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("ToggleRegion(99) = %v, want ErrUnknownRegion", err)
	}
	if err := s.SetRegion("2", true); err != nil {
		t.Errorf("SetRegion: %v", err)
	}
}

func TestLoadRegions_FailureKeepsGlobalTotals(t *testing.T) {
	s, f, e := newTestScheduler(t, Config{})
	f.metaErr = errors.New("regions unavailable")
	f.push(700, 70)

	if err := s.LoadRegions(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	s.tick(context.Background())
	if got := e.last().Series[domain.SeriesTotal]; got[0] != 700 {
		t.Errorf("total = %v, want 700", got[0])
	}
}

func TestLoadRegions_EmptyKeepsGlobalTotals(t *testing.T) {
	s, f, e := newTestScheduler(t, Config{})
	f.meta = domain.RegionMeta{}
	f.results = []fetchResult{{stats: domain.Stats{
		Totals:  domain.Counts{AllPlayers: 700, MaliciousBots: 70},
		Regions: map[string]domain.Counts{"eu-west": {AllPlayers: 700, MaliciousBots: 70}},
	}}}

	if err := s.LoadRegions(context.Background()); err == nil {
		t.Fatal("expected error for empty region list")
	}
	if s.Regions().Available() {
		t.Error("selector should stay unavailable")
	}
	s.tick(context.Background())
	if got := e.last().Series[domain.SeriesTotal]; got[0] != 700 {
		t.Errorf("total = %v, want 700", got[0])
	}
}

func TestRun_StartsAndStopsWithContext(t *testing.T) {
	s, _, e := newTestScheduler(t, Config{})
	s.scheduleFor = func(time.Duration) cron.Schedule { return delaySchedule(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	if !testutil.Eventually(t, time.Second, func() bool { return e.count() >= 1 }) {
		t.Fatal("Run did not tick")
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if s.Running() {
		t.Error("scheduler still running after Run returned")
	}
}

func TestRun_ClearSchedule(t *testing.T) {
	s, _, _ := newTestScheduler(t, Config{})
	s.scheduleFor = func(time.Duration) cron.Schedule { return delaySchedule(time.Hour) }
	s.WithClearSchedule(delaySchedule(20 * time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	if !testutil.Eventually(t, 2*time.Second, func() bool { return s.Status().Epoch >= 2 }) {
		t.Errorf("epoch = %d, scheduled clear never ran", s.Status().Epoch)
	}
}
