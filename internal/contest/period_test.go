package contest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcal/internal/markethours"
)

func newTestDeriver(t *testing.T, opts ...markethours.Option) *Deriver {
	t.Helper()
	cal, err := markethours.NewDefault(opts...)
	require.NoError(t, err)
	return NewDeriver(cal)
}

func ny(d *Deriver, y int, m time.Month, day, h, min int) time.Time {
	return time.Date(y, m, day, h, min, 0, 0, d.Calendar().Location())
}

func TestWeekBoundaries(t *testing.T) {
	d := newTestDeriver(t)

	tests := []struct {
		name  string
		at    time.Time
		start time.Time
		end   time.Time
	}{
		{
			name:  "regular week",
			at:    ny(d, 2024, time.January, 10, 12, 0),
			start: ny(d, 2024, time.January, 8, 9, 30),
			end:   ny(d, 2024, time.January, 12, 16, 0),
		},
		{
			name:  "monday holiday starts on tuesday",
			at:    ny(d, 2024, time.January, 17, 12, 0),
			start: ny(d, 2024, time.January, 16, 9, 30),
			end:   ny(d, 2024, time.January, 19, 16, 0),
		},
		{
			name:  "friday holiday ends on thursday",
			at:    ny(d, 2024, time.March, 25, 8, 0),
			start: ny(d, 2024, time.March, 25, 9, 30),
			end:   ny(d, 2024, time.March, 28, 16, 0),
		},
		{
			name:  "thanksgiving week ends on the half day",
			at:    ny(d, 2023, time.November, 21, 12, 0),
			start: ny(d, 2023, time.November, 20, 9, 30),
			end:   ny(d, 2023, time.November, 24, 13, 0),
		},
		{
			name:  "sunday belongs to the preceding iso week",
			at:    ny(d, 2024, time.January, 14, 23, 0),
			start: ny(d, 2024, time.January, 8, 9, 30),
			end:   ny(d, 2024, time.January, 12, 16, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, err := d.WeekStartTime(tt.at)
			require.NoError(t, err)
			assert.True(t, tt.start.Equal(start), "start: want %s got %s", tt.start, start)

			end, err := d.WeekEndTime(tt.at)
			require.NoError(t, err)
			assert.True(t, tt.end.Equal(end), "end: want %s got %s", tt.end, end)

			assert.False(t, start.After(end))
		})
	}
}

func TestIsWeekOver(t *testing.T) {
	d := newTestDeriver(t)

	over, err := d.IsWeekOver(ny(d, 2024, time.January, 12, 16, 0))
	require.NoError(t, err)
	assert.False(t, over, "the closing instant itself is not over")

	over, err = d.IsWeekOver(ny(d, 2024, time.January, 12, 16, 0).Add(time.Second))
	require.NoError(t, err)
	assert.True(t, over)

	over, err = d.IsWeekOver(ny(d, 2024, time.January, 8, 8, 0))
	require.NoError(t, err)
	assert.False(t, over)
}

func TestWeeklyPeriodKey(t *testing.T) {
	d := newTestDeriver(t)
	saturday := ny(d, 2024, time.January, 13, 12, 0)

	key, err := d.WeeklyPeriodKey(saturday, true)
	require.NoError(t, err)
	assert.Equal(t, "20240108", key)

	key, err = d.WeeklyPeriodKey(saturday, false)
	require.NoError(t, err)
	assert.Equal(t, "20240115", key, "a finished week rolls to the next")

	key, err = d.WeeklyPeriodKey(ny(d, 2024, time.January, 10, 12, 0), false)
	require.NoError(t, err)
	assert.Equal(t, "20240108", key)
}

func TestWeeklyPeriod_AdvancesWhenOver(t *testing.T) {
	d := newTestDeriver(t)

	p, err := d.WeeklyPeriod(ny(d, 2024, time.January, 13, 12, 0), false)
	require.NoError(t, err)
	assert.Equal(t, "20240115", p.Key)
	assert.Equal(t, markethours.Date{Year: 2024, Month: time.January, Day: 15}, p.Monday)
	assert.True(t, ny(d, 2024, time.January, 16, 9, 30).Equal(p.Start), "MLK day is skipped")
	assert.True(t, ny(d, 2024, time.January, 19, 16, 0).Equal(p.End))
}

func TestPhase(t *testing.T) {
	d := newTestDeriver(t)

	tests := []struct {
		at   time.Time
		want PeriodPhase
	}{
		{ny(d, 2024, time.January, 15, 12, 0), PhasePending},
		{ny(d, 2024, time.January, 16, 9, 30), PhaseActive},
		{ny(d, 2024, time.January, 19, 16, 0), PhaseActive},
		{ny(d, 2024, time.January, 20, 10, 0), PhaseClosed},
	}
	for _, tt := range tests {
		got, err := d.Phase(tt.at)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.at.String())
	}
}

func TestWeekBoundaries_ConfigurationGap(t *testing.T) {
	rs, err := markethours.ParseRuleSet([]byte(`
years:
  - year: 2031
    holidays:
      - { date: "2031-01-06" }
      - { date: "2031-01-07" }
      - { date: "2031-01-08" }
      - { date: "2031-01-09" }
      - { date: "2031-01-10" }
`))
	require.NoError(t, err)
	cal, err := markethours.New(rs, nil)
	require.NoError(t, err)
	d := NewDeriver(cal)

	at := ny(d, 2031, time.January, 8, 12, 0)
	_, err = d.WeekStartTime(at)
	assert.ErrorIs(t, err, markethours.ErrConfigurationGap)
	_, err = d.WeekEndTime(at)
	assert.ErrorIs(t, err, markethours.ErrConfigurationGap)
	_, err = d.WeeklyPeriod(at, false)
	assert.ErrorIs(t, err, markethours.ErrConfigurationGap)
}

func TestGameGuid(t *testing.T) {
	assert.Equal(t, "stock-week-20240115", GameGuid("20240115", GameTypeStock, LengthWeek))
}

func TestContestName(t *testing.T) {
	tests := []struct {
		day  int
		want string
	}{
		{1, "Weekly Stock Contest - January 1st, 2024"},
		{2, "Weekly Stock Contest - January 2nd, 2024"},
		{3, "Weekly Stock Contest - January 3rd, 2024"},
		{11, "Weekly Stock Contest - January 11th, 2024"},
		{15, "Weekly Stock Contest - January 15th, 2024"},
		{22, "Weekly Stock Contest - January 22nd, 2024"},
		{31, "Weekly Stock Contest - January 31st, 2024"},
	}
	for _, tt := range tests {
		p := Period{Monday: markethours.Date{Year: 2024, Month: time.January, Day: tt.day}}
		assert.Equal(t, tt.want, ContestName(p))
	}
}
