// Package window holds the bounded, chronologically ordered buffer of
// recent samples that backs the chart.
//
// Each index stores one whole domain.Sample, so the label and every series
// value are inserted and evicted together and can never fall out of
// alignment.
package window

import (
	"sync"

	"github.com/djlord-it/botgraph/internal/domain"
)

// Window is safe for concurrent use.
type Window struct {
	mu       sync.RWMutex
	samples  []domain.Sample
	capacity int
	position uint64 // appends since last Clear
	evicted  uint64
}

// New creates an empty window. A capacity below 1 is raised to 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		samples:  make([]domain.Sample, 0, capacity),
		capacity: capacity,
	}
}

// Append adds s at the end and evicts from the front until the window fits
// its capacity. Non-finite values are stored as 0.
// It returns the number of samples evicted.
func (w *Window) Append(s domain.Sample) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, s.Normalized())
	w.position++
	return w.trimLocked()
}

// Clear removes every sample and resets the position counter.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = make([]domain.Sample, 0, w.capacity)
	w.position = 0
}

// SetCapacity changes the capacity and trims the oldest samples right away
// if the window no longer fits. Returns the number of samples evicted.
func (w *Window) SetCapacity(capacity int) int {
	if capacity < 1 {
		capacity = 1
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.capacity = capacity
	return w.trimLocked()
}

func (w *Window) trimLocked() int {
	over := len(w.samples) - w.capacity
	if over <= 0 {
		return 0
	}
	clear(w.samples[:over])
	w.samples = w.samples[over:]
	// Reslicing keeps the old backing array; compact once it has grown
	// well past what the window needs.
	if cap(w.samples) > 2*w.capacity {
		kept := make([]domain.Sample, len(w.samples), 2*w.capacity)
		copy(kept, w.samples)
		w.samples = kept
	}
	w.evicted += uint64(over)
	return over
}

// Len returns the number of buffered samples.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.samples)
}

// Capacity returns the current capacity.
func (w *Window) Capacity() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.capacity
}

// Position returns the number of appends since the last Clear.
func (w *Window) Position() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.position
}

// Evicted returns the total number of samples evicted over the window's life.
func (w *Window) Evicted() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.evicted
}

// Samples returns a copy of the buffered samples, oldest first.
func (w *Window) Samples() []domain.Sample {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]domain.Sample, len(w.samples))
	copy(out, w.samples)
	return out
}

// Labels returns the sample labels, oldest first.
func (w *Window) Labels() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]string, len(w.samples))
	for i, s := range w.samples {
		out[i] = s.Label
	}
	return out
}

// Values returns one series, index-aligned with Labels.
func (w *Window) Values(series domain.Series) []float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]float64, len(w.samples))
	for i, s := range w.samples {
		out[i] = s.Value(series)
	}
	return out
}

// Columns returns labels and every series from a single consistent read.
func (w *Window) Columns() ([]string, map[domain.Series][]float64) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	labels := make([]string, len(w.samples))
	cols := make(map[domain.Series][]float64, len(domain.AllSeries))
	for _, series := range domain.AllSeries {
		cols[series] = make([]float64, len(w.samples))
	}
	for i, s := range w.samples {
		labels[i] = s.Label
		for _, series := range domain.AllSeries {
			cols[series][i] = s.Value(series)
		}
	}
	return labels, cols
}

// CapacityFor returns floor(window / interval), at least 1.
func CapacityFor(windowSeconds, intervalSeconds float64) int {
	if intervalSeconds <= 0 {
		return 1
	}
	n := int(windowSeconds / intervalSeconds)
	if n < 1 {
		return 1
	}
	return n
}
