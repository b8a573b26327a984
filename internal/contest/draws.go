package contest

import (
	"time"

	"marketcal/internal/markethours"
)

// Window is a half-open [Start, End) span of wall-clock time.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether Start <= t < End.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Draw periods follow calendar weeks and months in the exchange timezone
// and ignore the trading calendar entirely.

// WeeklyDrawPeriod returns the YYYYMMDD key of the ISO week containing t.
func (d *Deriver) WeeklyDrawPeriod(t time.Time) string {
	return d.isoMonday(t).Key()
}

// MonthlyDrawPeriod returns the YYYYMM key of the month containing t.
func (d *Deriver) MonthlyDrawPeriod(t time.Time) string {
	return d.cal.DateOf(t).Key()[:6]
}

// DrawGuid composes a draw identifier.
func DrawGuid(period, length string) string {
	return length + "-" + period
}

// WeeklyDrawGuid returns the draw guid for the week containing t.
func (d *Deriver) WeeklyDrawGuid(t time.Time) string {
	return DrawGuid(d.WeeklyDrawPeriod(t), LengthWeek)
}

// MonthlyDrawGuid returns the draw guid for the month containing t.
func (d *Deriver) MonthlyDrawGuid(t time.Time) string {
	return DrawGuid(d.MonthlyDrawPeriod(t), LengthMonth)
}

// WeeklyDrawWindow spans local midnight Monday to the following Monday.
func (d *Deriver) WeeklyDrawWindow(t time.Time) Window {
	monday := d.isoMonday(t)
	loc := d.cal.Location()
	return Window{
		Start: monday.At(0, 0, loc),
		End:   monday.AddDays(7).At(0, 0, loc),
	}
}

// MonthlyDrawWindow spans local midnight on the 1st to the 1st of the
// next month.
func (d *Deriver) MonthlyDrawWindow(t time.Time) Window {
	day := d.cal.DateOf(t)
	first := markethours.NewDate(day.Year, day.Month, 1)
	loc := d.cal.Location()
	return Window{
		Start: first.At(0, 0, loc),
		End:   markethours.NewDate(day.Year, day.Month+1, 1).At(0, 0, loc),
	}
}

// Crypto markets never close; their days and weeks are aligned to UTC.

// CryptoDayOpen returns UTC midnight of t's UTC day.
func CryptoDayOpen(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// CryptoDayClose returns the UTC midnight that ends t's UTC day.
func CryptoDayClose(t time.Time) time.Time {
	return CryptoDayOpen(t).AddDate(0, 0, 1)
}

// PreviousCryptoDayOpen returns the latest crypto day open at or before t.
// Every instant lies inside its own UTC day, so this is that day's open.
func PreviousCryptoDayOpen(t time.Time) time.Time {
	return CryptoDayOpen(t)
}

func cryptoMonday(t time.Time) time.Time {
	open := CryptoDayOpen(t)
	offset := (int(open.Weekday()) + 6) % 7
	return open.AddDate(0, 0, -offset)
}

// WeeklyCryptoPeriodKey returns the YYYYMMDD key of the UTC ISO week of t.
func WeeklyCryptoPeriodKey(t time.Time) string {
	return cryptoMonday(t).Format("20060102")
}

// WeeklyCryptoWindow spans UTC midnight Monday to the following Monday.
func WeeklyCryptoWindow(t time.Time) Window {
	m := cryptoMonday(t)
	return Window{Start: m, End: m.AddDate(0, 0, 7)}
}
