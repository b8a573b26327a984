package sessionclock

import (
	"time"

	"marketcal/internal/markethours"
	"marketcal/internal/model"
)

// Boundary is the next instant at which the session state changes.
type Boundary struct {
	Kind model.SessionEventKind `json:"kind"`
	At   time.Time              `json:"at"`
}

// NextBoundary returns the earliest open, close or polling end strictly
// after t.
func NextBoundary(cal *markethours.Calendar, t time.Time) (Boundary, error) {
	open, err := cal.NextSessionOpen(t)
	if err != nil {
		return Boundary{}, err
	}
	closeAt, err := cal.NextSessionClose(t)
	if err != nil {
		return Boundary{}, err
	}

	next := Boundary{Kind: model.EventOpen, At: open}
	if closeAt.Before(next.At) {
		next = Boundary{Kind: model.EventClose, At: closeAt}
	}

	// Polling runs past the close on the same day, so only today's window
	// can end before the next open.
	if w, ok := cal.PricePollingWindow(cal.DateOf(t)); ok && t.Before(w.Close) && w.Close.Before(next.At) {
		next = Boundary{Kind: model.EventPollingEnd, At: w.Close}
	}
	return next, nil
}
