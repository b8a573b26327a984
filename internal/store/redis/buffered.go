package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"marketcal/internal/model"
)

const flushTimeout = 10 * time.Second

// BufferedPublisher wraps a StatusPublisher with a circuit breaker. While
// the breaker is open, or a publish fails, events are queued locally and
// replayed in order before anything newer goes out.
type BufferedPublisher struct {
	inner model.StatusPublisher
	cb    *CircuitBreaker
	log   *slog.Logger

	// flushMu serializes every send so replayed and new events keep their order.
	flushMu sync.Mutex

	mu     sync.Mutex
	buffer []model.SessionEvent
	maxBuf int

	// OnBuffer is called when an event is queued (for metrics).
	OnBuffer func()
	// OnFlush is called after queued events were replayed, with count > 0.
	OnFlush func(count int)
}

var _ model.StatusPublisher = (*BufferedPublisher)(nil)

// NewBufferedPublisher wraps inner. maxBufferSize <= 0 selects 1000.
func NewBufferedPublisher(inner model.StatusPublisher, cb *CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	bp := &BufferedPublisher{
		inner:  inner,
		cb:     cb,
		log:    slog.Default().With("component", "buffered-publisher"),
		maxBuf: maxBufferSize,
	}
	cb.OnStateChange(func(from, to State) {
		if to == StateClosed {
			go bp.Flush(context.Background())
		}
	})
	return bp
}

// Publish sends ev through the breaker, queueing it when that fails. If
// older events are still queued, ev goes to the back of the queue and the
// queue is drained first. Only failures of the inner publisher are
// returned; a rejection by the open breaker is not an error since the
// event is retained.
func (bp *BufferedPublisher) Publish(ctx context.Context, ev model.SessionEvent) error {
	bp.flushMu.Lock()
	defer bp.flushMu.Unlock()

	send := func(ctx context.Context, ev model.SessionEvent) error {
		return bp.cb.Execute(func() error { return bp.inner.Publish(ctx, ev) })
	}

	var err error
	if bp.PendingCount() > 0 {
		bp.enqueue(ev)
		_, err = bp.drain(ctx, send)
	} else if err = send(ctx, ev); err != nil {
		bp.enqueue(ev)
	}
	if errors.Is(err, ErrCircuitOpen) {
		return nil
	}
	return err
}

func (bp *BufferedPublisher) enqueue(ev model.SessionEvent) {
	bp.mu.Lock()
	if len(bp.buffer) >= bp.maxBuf {
		// Drop oldest.
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, ev)
	bp.mu.Unlock()

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// Flush replays queued events directly on the inner publisher. Events that
// fail again are put back at the head of the queue.
func (bp *BufferedPublisher) Flush(ctx context.Context) int {
	bp.flushMu.Lock()
	defer bp.flushMu.Unlock()

	n, _ := bp.drain(ctx, bp.inner.Publish)
	return n
}

// drain sends queued events in order and stops at the first failure.
// Callers hold flushMu.
func (bp *BufferedPublisher) drain(ctx context.Context, send func(context.Context, model.SessionEvent) error) (int, error) {
	bp.mu.Lock()
	toFlush := bp.buffer
	bp.buffer = nil
	bp.mu.Unlock()
	if len(toFlush) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	var err error
	flushed := 0
	for i, ev := range toFlush {
		if err = send(ctx, ev); err != nil {
			bp.log.Warn("flush interrupted", "error", err, "remaining", len(toFlush)-i)
			bp.mu.Lock()
			bp.buffer = append(append([]model.SessionEvent(nil), toFlush[i:]...), bp.buffer...)
			bp.mu.Unlock()
			break
		}
		flushed++
	}

	if flushed > 0 {
		bp.log.Info("flushed buffered events", "count", flushed)
		if bp.OnFlush != nil {
			bp.OnFlush(flushed)
		}
	}
	return flushed, err
}

// PendingCount returns the number of queued events.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}

// Close closes the inner publisher. Queued events are dropped.
func (bp *BufferedPublisher) Close() error {
	if n := bp.PendingCount(); n > 0 {
		bp.log.Warn("closing with unpublished events", "count", n)
	}
	return bp.inner.Close()
}
