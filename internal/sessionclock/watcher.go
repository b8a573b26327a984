// Package sessionclock turns the calendar into a stream of session events.
// A Watcher sleeps until the next boundary, then fans the event out to its
// subscribers.
package sessionclock

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"marketcal/internal/markethours"
	"marketcal/internal/model"
)

const (
	defaultHeartbeat  = time.Minute
	defaultMinBackoff = 5 * time.Second
	defaultMaxBackoff = 5 * time.Minute
)

// Config tunes a Watcher. Zero values select defaults; a negative
// Heartbeat disables heartbeats.
type Config struct {
	Heartbeat  time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Watcher emits a SessionEvent at every session boundary plus periodic
// heartbeats carrying the current status.
type Watcher struct {
	cal *markethours.Calendar
	cfg Config
	log *slog.Logger

	// sleep blocks for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	subs []chan model.SessionEvent

	dropped atomic.Int64

	// OnEvent is called for every emitted event (for metrics).
	OnEvent func(ev model.SessionEvent)
	// OnDrop is called when a full subscriber misses an event.
	OnDrop func()
	// OnError is called when the calendar cannot produce a boundary.
	OnError func(err error)
}

// New creates a Watcher over cal.
func New(cal *markethours.Calendar, cfg Config) *Watcher {
	if cfg.Heartbeat == 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = defaultMaxBackoff
		if cfg.MaxBackoff < cfg.MinBackoff {
			cfg.MaxBackoff = cfg.MinBackoff
		}
	}
	return &Watcher{
		cal:   cal,
		cfg:   cfg,
		log:   slog.Default().With("component", "sessionclock"),
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Subscribe returns a channel receiving every event. Slow subscribers miss
// events rather than stall the clock. Channels are closed when Run returns.
func (w *Watcher) Subscribe(buffer int) <-chan model.SessionEvent {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan model.SessionEvent, buffer)
	w.mu.Lock()
	w.subs = append(w.subs, ch)
	w.mu.Unlock()
	return ch
}

// Dropped returns how many deliveries were skipped for full subscribers.
func (w *Watcher) Dropped() int64 { return w.dropped.Load() }

func (w *Watcher) emit(ev model.SessionEvent) {
	if w.OnEvent != nil {
		w.OnEvent(ev)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- ev:
		default:
			w.dropped.Add(1)
			if w.OnDrop != nil {
				w.OnDrop()
			}
		}
	}
}

func (w *Watcher) closeSubs() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		close(ch)
	}
	w.subs = nil
}

func (w *Watcher) event(kind model.SessionEventKind, at time.Time) (model.SessionEvent, error) {
	st, err := w.cal.Status(at)
	return model.SessionEvent{Kind: kind, At: at, Status: st}, err
}

// Run emits events until ctx is cancelled. It starts with a heartbeat so
// subscribers learn the current state immediately.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.closeSubs()

	backoff := w.cfg.MinBackoff
	lastBeat := time.Time{}

	for {
		now := w.cal.Now()

		if w.cfg.Heartbeat > 0 && (lastBeat.IsZero() || now.Sub(lastBeat) >= w.cfg.Heartbeat) {
			if ev, err := w.event(model.EventHeartbeat, now); err == nil {
				w.emit(ev)
			} else {
				w.fail(err)
			}
			lastBeat = now
		}

		next, err := NextBoundary(w.cal, now)
		if err != nil {
			w.fail(err)
			if err := w.sleep(ctx, backoff); err != nil {
				return nil
			}
			backoff *= 2
			if backoff > w.cfg.MaxBackoff {
				backoff = w.cfg.MaxBackoff
			}
			continue
		}
		backoff = w.cfg.MinBackoff

		wait := next.At.Sub(now)
		if w.cfg.Heartbeat > 0 {
			if untilBeat := w.cfg.Heartbeat - now.Sub(lastBeat); untilBeat < wait {
				wait = untilBeat
			}
		}
		w.log.Debug("sleeping", "next", next.Kind, "at", next.At, "wait", wait.Truncate(time.Second))
		if err := w.sleep(ctx, wait); err != nil {
			return nil
		}

		if now = w.cal.Now(); now.Before(next.At) {
			continue
		}
		ev, err := w.event(next.Kind, next.At)
		if err != nil {
			// Subscribers never see a boundary with an incomplete status.
			w.fail(err)
			continue
		}
		w.log.Info("session boundary", "kind", ev.Kind, "at", ev.At, "status", ev.Status.String())
		w.emit(ev)
	}
}

func (w *Watcher) fail(err error) {
	w.log.Error("calendar error", "error", err)
	if w.OnError != nil {
		w.OnError(err)
	}
}
