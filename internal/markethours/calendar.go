// Package markethours answers trading-calendar questions for a single
// exchange: whether a date is a trading day, when a session opens and
// closes, and where the previous or next session boundary lies.
//
// All rules are evaluated on the exchange-local calendar date. A UTC
// timestamp shortly after midnight may belong to the previous local day.
package markethours

import (
	"errors"
	"fmt"
	"time"

	_ "time/tzdata"
)

// DefaultTimezone is the exchange timezone for US equities.
const DefaultTimezone = "America/New_York"

// DefaultMaxLookbackDays bounds every day-by-day search. Two weeks is far
// more than any run of weekends and holidays in a sane rule table.
const DefaultMaxLookbackDays = 14

// ErrConfigurationGap is returned when a bounded search walks past its
// step limit without finding a trading day.
var ErrConfigurationGap = errors.New("markethours: no trading day within search bound")

// Calendar evaluates trading rules in one exchange timezone. It holds no
// mutable state and is safe for concurrent use.
type Calendar struct {
	rules          *TradingRuleSet
	loc            *time.Location
	realtimePrices bool
	maxLookback    int
	now            func() time.Time
}

// Option configures a Calendar.
type Option func(*Calendar)

// WithRealtimePrices disables the 15 minute open delay applied to the
// price polling window.
func WithRealtimePrices(realtime bool) Option {
	return func(c *Calendar) { c.realtimePrices = realtime }
}

// WithMaxLookbackDays overrides DefaultMaxLookbackDays.
func WithMaxLookbackDays(n int) Option {
	return func(c *Calendar) {
		if n > 0 {
			c.maxLookback = n
		}
	}
}

// WithClock overrides the wall clock used by Now.
func WithClock(now func() time.Time) Option {
	return func(c *Calendar) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Calendar. A nil loc means DefaultTimezone.
func New(rules *TradingRuleSet, loc *time.Location, opts ...Option) (*Calendar, error) {
	if rules == nil {
		return nil, fmt.Errorf("%w: nil rule set", ErrInvalidRules)
	}
	if loc == nil {
		var err error
		loc, err = time.LoadLocation(DefaultTimezone)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", DefaultTimezone, err)
		}
	}
	c := &Calendar{
		rules:       rules,
		loc:         loc,
		maxLookback: DefaultMaxLookbackDays,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewDefault creates a Calendar from the built-in US equities rules.
func NewDefault(opts ...Option) (*Calendar, error) {
	rules, err := DefaultRuleSet()
	if err != nil {
		return nil, err
	}
	return New(rules, nil, opts...)
}

// Location returns the exchange timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Rules returns the rule set backing the calendar.
func (c *Calendar) Rules() *TradingRuleSet { return c.rules }

// RealtimePrices reports whether prices are delivered without delay.
func (c *Calendar) RealtimePrices() bool { return c.realtimePrices }

// Now returns the current instant in the exchange timezone.
func (c *Calendar) Now() time.Time { return c.now().In(c.loc) }

// DateOf returns the exchange-local date of t.
func (c *Calendar) DateOf(t time.Time) Date { return DateOf(t, c.loc) }

// IsWeekend reports whether d is a Saturday or Sunday.
func (c *Calendar) IsWeekend(d Date) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsHoliday reports whether d matches a fixed annual holiday or a
// configured observed holiday.
func (c *Calendar) IsHoliday(d Date) bool {
	_, ok := c.rules.HolidayName(d)
	return ok
}

// IsHalfDay reports whether the session on d closes early.
func (c *Calendar) IsHalfDay(d Date) bool {
	_, ok := c.rules.HalfDayName(d)
	return ok
}

// IsTradingDay reports whether the market holds a session on d.
func (c *Calendar) IsTradingDay(d Date) bool {
	return !c.IsWeekend(d) && !c.IsHoliday(d)
}

func (c *Calendar) gap(op string, from Date, steps int) error {
	return fmt.Errorf("%w: %s from %s gave up after %d days", ErrConfigurationGap, op, from, steps)
}
