package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TickStarted()                                                   {}
func (n *NoopSink) TickCompleted(duration time.Duration, appended bool, err error) {}
func (n *NoopSink) SchedulerRunning(running bool)                                  {}
func (n *NoopSink) IntervalSet(interval time.Duration)                             {}
func (n *NoopSink) Reconfigured()                                                  {}
func (n *NoopSink) WindowSizeUpdate(size int)                                      {}
func (n *NoopSink) WindowCapacitySet(capacity int)                                 {}
func (n *NoopSink) SamplesEvicted(count int)                                       {}
func (n *NoopSink) LatestSample(total, malicious, impact float64)                  {}
func (n *NoopSink) FetchCompleted(endpoint, statusClass string, d time.Duration)   {}
func (n *NoopSink) BufferSizeUpdate(size int)                                      {}
func (n *NoopSink) FrameDropped()                                                  {}
func (n *NoopSink) ClientsConnected(count int)                                     {}
func (n *NoopSink) JournalPruned(rows int64, err error)                            {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                              {}
