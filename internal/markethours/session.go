package markethours

import (
	"fmt"
	"time"
)

// Session hours in the exchange timezone.
const (
	OpenHour         = 9
	OpenMinute       = 30
	CloseHour        = 16
	CloseMinute      = 0
	HalfDayCloseHour = 13

	// Delayed quotes arrive this long after the open.
	PriceDelay = 15 * time.Minute
	// Closing prices keep settling for this long after the close.
	ClosePriceGrace = time.Hour
)

// SessionWindow is the open/close pair of one trading day.
type SessionWindow struct {
	Date    Date      `json:"date"`
	Open    time.Time `json:"open"`
	Close   time.Time `json:"close"`
	HalfDay bool      `json:"half_day"`
}

// Duration is the length of the session.
func (w SessionWindow) Duration() time.Duration { return w.Close.Sub(w.Open) }

// Contains reports whether open <= t < close.
func (w SessionWindow) Contains(t time.Time) bool {
	return !t.Before(w.Open) && t.Before(w.Close)
}

// SessionOpen returns 09:30 local on d.
func (c *Calendar) SessionOpen(d Date) time.Time {
	return d.At(OpenHour, OpenMinute, c.loc)
}

// SessionClose returns 13:00 local on half days, 16:00 otherwise.
func (c *Calendar) SessionClose(d Date) time.Time {
	if c.IsHalfDay(d) {
		return d.At(HalfDayCloseHour, 0, c.loc)
	}
	return d.At(CloseHour, CloseMinute, c.loc)
}

// Window returns the session on d, or false if d is not a trading day.
func (c *Calendar) Window(d Date) (SessionWindow, bool) {
	if !c.IsTradingDay(d) {
		return SessionWindow{}, false
	}
	return SessionWindow{
		Date:    d,
		Open:    c.SessionOpen(d),
		Close:   c.SessionClose(d),
		HalfDay: c.IsHalfDay(d),
	}, true
}

// CurrentOrNextSessionOpen returns the open on the local date of t. It does
// not scan forward past non-trading days; use NextSessionOpen for that.
func (c *Calendar) CurrentOrNextSessionOpen(t time.Time) time.Time {
	return c.SessionOpen(c.DateOf(t))
}

// PreviousSessionOpen returns the most recent session open at or before t.
func (c *Calendar) PreviousSessionOpen(t time.Time) (time.Time, error) {
	d, err := c.stepBack("previous open", t, c.SessionOpen)
	if err != nil {
		return time.Time{}, err
	}
	return c.SessionOpen(d), nil
}

// PreviousSessionClose returns the most recent session close at or before t.
func (c *Calendar) PreviousSessionClose(t time.Time) (time.Time, error) {
	d, err := c.stepBack("previous close", t, c.SessionClose)
	if err != nil {
		return time.Time{}, err
	}
	return c.SessionClose(d), nil
}

// NextSessionOpen returns the first session open strictly after t.
func (c *Calendar) NextSessionOpen(t time.Time) (time.Time, error) {
	d, err := c.stepForward("next open", t, c.SessionOpen)
	if err != nil {
		return time.Time{}, err
	}
	return c.SessionOpen(d), nil
}

// NextSessionClose returns the first session close strictly after t.
func (c *Calendar) NextSessionClose(t time.Time) (time.Time, error) {
	d, err := c.stepForward("next close", t, c.SessionClose)
	if err != nil {
		return time.Time{}, err
	}
	return c.SessionClose(d), nil
}

// stepBack finds the latest trading day whose boundary is at or before t.
func (c *Calendar) stepBack(op string, t time.Time, boundary func(Date) time.Time) (Date, error) {
	start := c.DateOf(t)
	d := start
	if t.Before(boundary(d)) {
		d = d.AddDays(-1)
	}
	for i := 0; i <= c.maxLookback; i++ {
		if c.IsTradingDay(d) {
			return d, nil
		}
		d = d.AddDays(-1)
	}
	return Date{}, c.gap(op, start, c.maxLookback)
}

// stepForward finds the earliest trading day whose boundary is after t.
func (c *Calendar) stepForward(op string, t time.Time, boundary func(Date) time.Time) (Date, error) {
	start := c.DateOf(t)
	d := start
	if !t.Before(boundary(d)) {
		d = d.AddDays(1)
	}
	for i := 0; i <= c.maxLookback; i++ {
		if c.IsTradingDay(d) {
			return d, nil
		}
		d = d.AddDays(1)
	}
	return Date{}, c.gap(op, start, c.maxLookback)
}

// IsDuringSessionHours reports whether t falls inside the regular session
// of a trading day. The open instant counts as open, the close instant
// does not.
func (c *Calendar) IsDuringSessionHours(t time.Time) bool {
	w, ok := c.Window(c.DateOf(t))
	return ok && w.Contains(t)
}

// PricePollingWindow is the session widened for quote collection: the open
// moves PriceDelay later unless prices are realtime, and the close moves
// ClosePriceGrace later so closing prices can settle.
func (c *Calendar) PricePollingWindow(d Date) (SessionWindow, bool) {
	w, ok := c.Window(d)
	if !ok {
		return SessionWindow{}, false
	}
	if !c.realtimePrices {
		w.Open = w.Open.Add(PriceDelay)
	}
	w.Close = w.Close.Add(ClosePriceGrace)
	return w, true
}

// IsDuringPricePollingHours reports whether quotes should be polled at t.
func (c *Calendar) IsDuringPricePollingHours(t time.Time) bool {
	w, ok := c.PricePollingWindow(c.DateOf(t))
	return ok && w.Contains(t)
}

// MarketStatus is a point-in-time summary of the session state.
type MarketStatus struct {
	At            time.Time      `json:"at"`
	Timezone      string         `json:"timezone"`
	Date          Date           `json:"date"`
	Open          bool           `json:"open"`
	PricePolling  bool           `json:"price_polling"`
	TradingDay    bool           `json:"trading_day"`
	Holiday       string         `json:"holiday,omitempty"`
	HalfDay       bool           `json:"half_day"`
	Session       *SessionWindow `json:"session,omitempty"`
	PreviousClose time.Time      `json:"previous_close"`
	NextOpen      time.Time      `json:"next_open"`
	NextClose     time.Time      `json:"next_close"`
}

// Status summarizes the market at t.
func (c *Calendar) Status(t time.Time) (MarketStatus, error) {
	t = t.In(c.loc)
	d := c.DateOf(t)

	st := MarketStatus{
		At:           t,
		Timezone:     c.loc.String(),
		Date:         d,
		Open:         c.IsDuringSessionHours(t),
		PricePolling: c.IsDuringPricePollingHours(t),
		TradingDay:   c.IsTradingDay(d),
		HalfDay:      c.IsHalfDay(d),
	}
	if name, ok := c.rules.HolidayName(d); ok {
		st.Holiday = name
	}
	if w, ok := c.Window(d); ok {
		st.Session = &w
	}

	var err error
	if st.PreviousClose, err = c.PreviousSessionClose(t); err != nil {
		return st, err
	}
	if st.NextOpen, err = c.NextSessionOpen(t); err != nil {
		return st, err
	}
	if st.NextClose, err = c.NextSessionClose(t); err != nil {
		return st, err
	}
	return st, nil
}

// String renders a one-line human readable status.
func (s MarketStatus) String() string {
	if s.Open && s.Session != nil {
		return fmt.Sprintf("Market Open - closes in %s", fmtDur(s.Session.Close.Sub(s.At)))
	}
	next := s.NextOpen
	return fmt.Sprintf("Market Closed - opens %s %s (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(s.At)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
