// Package contest derives recurring contest periods from the trading
// calendar and manages the game records built on them.
//
// A weekly stock contest runs from the first session open of an ISO week
// (Monday start) to the last session close of that week. Weeks whose
// Monday is a holiday start on Tuesday; weeks whose Friday is a holiday
// end on Thursday.
package contest

import (
	"fmt"
	"time"

	"marketcal/internal/markethours"
)

// Game types and lengths used when composing guids.
const (
	GameTypeStock = "stock"
	LengthWeek    = "week"
	LengthMonth   = "month"
)

// PeriodPhase is the lifecycle position of an instant relative to a period.
type PeriodPhase string

const (
	PhasePending PeriodPhase = "pending"
	PhaseActive  PeriodPhase = "active"
	PhaseClosed  PeriodPhase = "closed"
)

// Period is one weekly contest cycle.
type Period struct {
	Key    string           `json:"key"`
	Monday markethours.Date `json:"monday"`
	Start  time.Time        `json:"start"`
	End    time.Time        `json:"end"`
}

// PhaseAt places t relative to the period. The end instant itself still
// counts as active.
func (p Period) PhaseAt(t time.Time) PeriodPhase {
	switch {
	case t.Before(p.Start):
		return PhasePending
	case t.After(p.End):
		return PhaseClosed
	default:
		return PhaseActive
	}
}

// Deriver computes contest periods on top of a Calendar. It is stateless.
type Deriver struct {
	cal *markethours.Calendar
}

// NewDeriver creates a Deriver.
func NewDeriver(cal *markethours.Calendar) *Deriver {
	return &Deriver{cal: cal}
}

// Calendar returns the underlying calendar.
func (d *Deriver) Calendar() *markethours.Calendar { return d.cal }

// isoMonday returns the Monday of the ISO week containing the local date
// of t.
func (d *Deriver) isoMonday(t time.Time) markethours.Date {
	day := d.cal.DateOf(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDays(-offset)
}

// weekStart walks forward from monday to the first trading day of the week.
func (d *Deriver) weekStart(monday markethours.Date) (time.Time, error) {
	day := monday
	for i := 0; i < 7; i++ {
		if d.cal.IsTradingDay(day) {
			return d.cal.SessionOpen(day), nil
		}
		day = day.AddDays(1)
	}
	return time.Time{}, fmt.Errorf("%w: week of %s has no trading day", markethours.ErrConfigurationGap, monday)
}

// weekEnd walks backward from the week's Sunday to its last trading day.
func (d *Deriver) weekEnd(monday markethours.Date) (time.Time, error) {
	day := monday.AddDays(6)
	for i := 0; i < 7; i++ {
		if d.cal.IsTradingDay(day) {
			return d.cal.SessionClose(day), nil
		}
		day = day.AddDays(-1)
	}
	return time.Time{}, fmt.Errorf("%w: week of %s has no trading day", markethours.ErrConfigurationGap, monday)
}

// WeekStartTime returns the first session open of t's ISO week.
func (d *Deriver) WeekStartTime(t time.Time) (time.Time, error) {
	return d.weekStart(d.isoMonday(t))
}

// WeekEndTime returns the last session close of t's ISO week.
func (d *Deriver) WeekEndTime(t time.Time) (time.Time, error) {
	return d.weekEnd(d.isoMonday(t))
}

// IsWeekOver reports whether t is after the last session close of its
// ISO week.
func (d *Deriver) IsWeekOver(t time.Time) (bool, error) {
	end, err := d.WeekEndTime(t)
	if err != nil {
		return false, err
	}
	return t.After(end), nil
}

// periodMonday resolves the Monday of the contest week for t, moving to
// the following week once the current one has finished unless
// ignoreIfOver is set.
func (d *Deriver) periodMonday(t time.Time, ignoreIfOver bool) (markethours.Date, error) {
	monday := d.isoMonday(t)
	if ignoreIfOver {
		return monday, nil
	}
	over, err := d.IsWeekOver(t)
	if err != nil {
		return markethours.Date{}, err
	}
	if over {
		monday = monday.AddDays(7)
	}
	return monday, nil
}

// WeeklyPeriodKey returns the YYYYMMDD Monday key of the contest week for t.
func (d *Deriver) WeeklyPeriodKey(t time.Time, ignoreIfOver bool) (string, error) {
	monday, err := d.periodMonday(t, ignoreIfOver)
	if err != nil {
		return "", err
	}
	return monday.Key(), nil
}

// WeeklyPeriod returns the key and session bounds of the contest week for t.
func (d *Deriver) WeeklyPeriod(t time.Time, ignoreIfOver bool) (Period, error) {
	monday, err := d.periodMonday(t, ignoreIfOver)
	if err != nil {
		return Period{}, err
	}
	start, err := d.weekStart(monday)
	if err != nil {
		return Period{}, err
	}
	end, err := d.weekEnd(monday)
	if err != nil {
		return Period{}, err
	}
	return Period{Key: monday.Key(), Monday: monday, Start: start, End: end}, nil
}

// Phase places t within its own ISO week's contest.
func (d *Deriver) Phase(t time.Time) (PeriodPhase, error) {
	p, err := d.WeeklyPeriod(t, true)
	if err != nil {
		return "", err
	}
	return p.PhaseAt(t), nil
}

// GameGuid composes the contest identifier. Requests with the same type,
// length and period share one guid and therefore join the same contest.
func GameGuid(periodKey, gameType, gameLength string) string {
	return gameType + "-" + gameLength + "-" + periodKey
}

// ContestName renders the display name of a weekly stock contest, e.g.
// "Weekly Stock Contest - January 15th, 2024".
func ContestName(p Period) string {
	m := p.Monday
	return fmt.Sprintf("Weekly Stock Contest - %s %d%s, %d", m.Month, m.Day, ordinal(m.Day), m.Year)
}

func ordinal(n int) string {
	if n%100 >= 11 && n%100 <= 13 {
		return "th"
	}
	switch n % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}
