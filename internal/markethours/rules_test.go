package markethours

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRuleSet(t *testing.T) {
	rs, err := DefaultRuleSet()
	require.NoError(t, err)

	assert.Equal(t, []int{2021, 2022, 2023, 2024, 2025, 2026, 2027}, rs.Years())
	assert.Equal(t, 2027, rs.LastYear())
	assert.True(t, rs.Covers(2024))
	assert.False(t, rs.Covers(2020))

	name, ok := rs.HolidayName(Date{2024, time.March, 29})
	require.True(t, ok)
	assert.Equal(t, "Good Friday", name)

	name, ok = rs.HolidayName(Date{2019, time.December, 25})
	require.True(t, ok, "fixed holidays recur in any year")
	assert.Equal(t, "Christmas Day", name)

	name, ok = rs.HalfDayName(Date{2024, time.December, 24})
	require.True(t, ok)
	assert.Equal(t, "Christmas Eve", name)
}

func TestRuleSet_Validate(t *testing.T) {
	rs, err := DefaultRuleSet()
	require.NoError(t, err)

	assert.NoError(t, rs.Validate(2026, 1, 1))

	err = rs.Validate(2027, 0, 1)
	require.ErrorIs(t, err, ErrCoverageGap)
	assert.Contains(t, err.Error(), "2028")

	err = rs.Validate(2021, 2, 0)
	require.ErrorIs(t, err, ErrCoverageGap)
	assert.Contains(t, err.Error(), "[2019 2020]")
}

func TestParseRuleSet_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "malformed yaml",
			doc:  "years: [",
		},
		{
			name: "bad date",
			doc: `
years:
  - year: 2024
    holidays:
      - { date: "2024-13-01" }
`,
		},
		{
			name: "date under the wrong year",
			doc: `
years:
  - year: 2024
    holidays:
      - { date: "2025-01-20" }
`,
		},
		{
			name: "duplicate year",
			doc: `
years:
  - year: 2024
  - year: 2024
`,
		},
		{
			name: "half day on a weekend",
			doc: `
years:
  - year: 2024
    half_days:
      - { date: "2024-11-24" }
`,
		},
		{
			name: "half day that is also a holiday",
			doc: `
years:
  - year: 2024
    holidays:
      - { date: "2024-11-29" }
    half_days:
      - { date: "2024-11-29" }
`,
		},
		{
			name: "half day on a fixed holiday",
			doc: `
fixed_holidays:
  - { month: 12, day: 24 }
years:
  - year: 2024
    half_days:
      - { date: "2024-12-24" }
`,
		},
		{
			name: "fixed holiday out of range",
			doc: `
fixed_holidays:
  - { month: 13, day: 1 }
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRuleSet([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidRules)
		})
	}
}

func TestLoadRuleSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	doc := `
version: "test"
fixed_holidays:
  - { month: 1, day: 1, name: "New Year's Day" }
years:
  - year: 2031
    holidays:
      - { date: "2031-01-20", name: "Martin Luther King Jr. Day" }
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	rs, err := LoadRuleSet(path)
	require.NoError(t, err)
	assert.Equal(t, "test", rs.Version)
	assert.True(t, rs.Covers(2031))

	cal, err := New(rs, nil)
	require.NoError(t, err)
	assert.False(t, cal.IsTradingDay(Date{2031, time.January, 20}))
	assert.True(t, cal.IsTradingDay(Date{2031, time.January, 21}))

	_, err = LoadRuleSet(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNew_NilRules(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRules)
}

func TestDate(t *testing.T) {
	d := Date{2023, time.December, 30}

	assert.Equal(t, Date{2024, time.January, 2}, d.AddDays(3))
	assert.Equal(t, Date{2023, time.November, 30}, d.AddDays(-30))
	assert.Equal(t, time.Saturday, d.Weekday())
	assert.Equal(t, "2023-12-30", d.String())
	assert.Equal(t, "20231230", d.Key())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.False(t, d.Before(d))
	assert.Equal(t, Date{2024, time.February, 1}, NewDate(2024, time.January, 32))

	parsed, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, Date{2024, time.February, 29}, parsed)

	_, err = ParseDate("2023-02-29")
	assert.Error(t, err)

	b, err := json.Marshal(struct {
		D Date `json:"d"`
	}{d})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2023-12-30"}`, string(b))
}

func TestFormatting(t *testing.T) {
	cal := newTestCalendar(t)
	ts := time.Date(2024, time.January, 15, 22, 30, 0, 0, cal.Location())

	assert.Equal(t, "2024-01-16T03:30:00Z", FormatUTCTimestamp(ts))
	assert.Equal(t, "2024-01-16", FormatUTCDate(ts))
	assert.Equal(t, "2024-01-15", cal.FormatLocalDate(ts))

	parsed, err := ParseInstant("2024-01-15T10:00:00-05:00")
	require.NoError(t, err)
	assert.True(t, parsed.Equal(time.Date(2024, time.January, 15, 15, 0, 0, 0, time.UTC)))

	_, err = ParseInstant("2024-01-15T10:00:00")
	assert.Error(t, err, "offset is required")

	now := time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)
	assert.True(t, IsPastDelayThreshold(now.Add(-2*time.Minute), now, time.Minute))
	assert.False(t, IsPastDelayThreshold(now.Add(-30*time.Second), now, time.Minute))
}
