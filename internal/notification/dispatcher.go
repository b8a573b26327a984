package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"marketcal/internal/markethours"
	"marketcal/internal/model"
)

const sendTimeout = 15 * time.Second

// Dispatcher turns session events, calendar errors and new games into
// alerts. Repeated error alerts are throttled.
type Dispatcher struct {
	n        Notifier
	throttle time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu        sync.Mutex
	lastError time.Time
}

// NewDispatcher creates a Dispatcher. throttle <= 0 selects one hour.
func NewDispatcher(n Notifier, throttle time.Duration) *Dispatcher {
	if throttle <= 0 {
		throttle = time.Hour
	}
	return &Dispatcher{
		n:        n,
		throttle: throttle,
		now:      time.Now,
		log:      slog.Default().With("component", "notify"),
	}
}

// Run alerts on boundary events until ctx is cancelled or events closes.
func (d *Dispatcher) Run(ctx context.Context, events <-chan model.SessionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if alert, ok := EventAlert(ev); ok {
				d.send(ctx, alert)
			}
		}
	}
}

// EventAlert builds the alert for a boundary event. Heartbeats produce none.
func EventAlert(ev model.SessionEvent) (Alert, bool) {
	at := markethours.FormatUTCTimestamp(ev.At)
	local := ev.At.Format("Mon Jan 2 15:04 MST")
	switch ev.Kind {
	case model.EventOpen:
		a := Alert{
			Level:   AlertInfo,
			Title:   "Market open",
			Message: "Regular session opened " + local,
			Fields:  map[string]string{"at": at},
		}
		if ev.Status.Session != nil {
			a.Fields["closes"] = markethours.FormatUTCTimestamp(ev.Status.Session.Close)
			if ev.Status.HalfDay {
				a.Message += " (early close)"
			}
		}
		return a, true
	case model.EventClose:
		a := Alert{
			Level:   AlertInfo,
			Title:   "Market closed",
			Message: "Regular session closed " + local,
			Fields:  map[string]string{"at": at},
		}
		if !ev.Status.NextOpen.IsZero() {
			a.Fields["next_open"] = markethours.FormatUTCTimestamp(ev.Status.NextOpen)
		}
		return a, true
	case model.EventPollingEnd:
		return Alert{
			Level:   AlertInfo,
			Title:   "Closing prices settled",
			Message: "Price polling window ended " + local,
			Fields:  map[string]string{"at": at},
		}, true
	default:
		return Alert{}, false
	}
}

// CalendarError raises a critical alert, at most once per throttle window.
func (d *Dispatcher) CalendarError(ctx context.Context, err error) {
	d.mu.Lock()
	now := d.now()
	if !d.lastError.IsZero() && now.Sub(d.lastError) < d.throttle {
		d.mu.Unlock()
		return
	}
	d.lastError = now
	d.mu.Unlock()

	d.send(ctx, Alert{
		Level:   AlertCritical,
		Title:   "Trading calendar misconfigured",
		Message: err.Error(),
	})
}

// GameCreated announces a new weekly contest.
func (d *Dispatcher) GameCreated(ctx context.Context, g *model.Game) {
	d.send(ctx, Alert{
		Level:   AlertInfo,
		Title:   "Contest created",
		Message: g.Name,
		Fields: map[string]string{
			"guid":    g.GUID,
			"start":   markethours.FormatUTCTimestamp(g.StartAt),
			"end":     markethours.FormatUTCTimestamp(g.EndAt),
			"players": fmt.Sprint(len(g.Players)),
		},
	})
}

func (d *Dispatcher) send(ctx context.Context, alert Alert) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := d.n.Send(ctx, alert); err != nil {
		d.log.Warn("alert delivery failed", "title", alert.Title, "error", err)
	}
}
