// Package channel carries rendered frames from the scheduler to the push hub
// over a bounded in-memory channel.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/djlord-it/botgraph/internal/domain"
)

// ErrBufferFull is returned when a frame could not be queued within the emit timeout.
var ErrBufferFull = errors.New("frame bus buffer full")

// DefaultEmitTimeout is how long Emit waits for buffer space.
const DefaultEmitTimeout = 100 * time.Millisecond

// MetricsSink records bus occupancy and drops.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	FrameDropped()
}

// Option configures a FrameBus.
type Option func(*FrameBus)

// WithEmitTimeout sets how long Emit waits when the buffer is full.
func WithEmitTimeout(d time.Duration) Option {
	return func(b *FrameBus) {
		b.emitTimeout = d
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(sink MetricsSink) Option {
	return func(b *FrameBus) {
		b.metrics = sink
	}
}

type FrameBus struct {
	ch          chan domain.Frame
	emitTimeout time.Duration
	metrics     MetricsSink // optional, nil = disabled
}

func NewFrameBus(buffer int, opts ...Option) *FrameBus {
	if buffer < 1 {
		buffer = 1
	}
	b := &FrameBus{
		ch:          make(chan domain.Frame, buffer),
		emitTimeout: DefaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit queues frame. It never blocks longer than the emit timeout; a frame
// that does not fit is dropped and ErrBufferFull is returned.
func (b *FrameBus) Emit(ctx context.Context, frame domain.Frame) error {
	select {
	case b.ch <- frame:
		b.updateSize()
		return nil
	default:
	}

	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- frame:
		b.updateSize()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if b.metrics != nil {
			b.metrics.FrameDropped()
		}
		return ErrBufferFull
	}
}

// Channel returns the receive side of the bus.
func (b *FrameBus) Channel() <-chan domain.Frame {
	return b.ch
}

// Len returns the number of queued frames.
func (b *FrameBus) Len() int {
	return len(b.ch)
}

func (b *FrameBus) updateSize() {
	if b.metrics != nil {
		b.metrics.BufferSizeUpdate(len(b.ch))
	}
}
