package markethours

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed data/us_equities.yaml
var defaultRulesYAML []byte

var (
	// ErrInvalidRules is returned when a rule document fails validation.
	ErrInvalidRules = errors.New("markethours: invalid rule set")

	// ErrCoverageGap is returned by Validate when a required year has no
	// rule block.
	ErrCoverageGap = errors.New("markethours: rule set does not cover year")
)

// TradingRuleSet is the holiday and half-day table for one exchange.
// It is immutable once built and safe for concurrent use.
type TradingRuleSet struct {
	Version string

	fixed    map[MonthDay]string
	holidays map[Date]string
	halfDays map[Date]string
	years    []int
}

// ruleDoc is the on-disk YAML shape.
type ruleDoc struct {
	Version       string          `yaml:"version"`
	FixedHolidays []fixedEntry    `yaml:"fixed_holidays"`
	Years         []yearRulesDocs `yaml:"years"`
}

type fixedEntry struct {
	Month int    `yaml:"month"`
	Day   int    `yaml:"day"`
	Name  string `yaml:"name"`
}

type datedEntry struct {
	Date string `yaml:"date"`
	Name string `yaml:"name"`
}

type yearRulesDocs struct {
	Year     int          `yaml:"year"`
	Holidays []datedEntry `yaml:"holidays"`
	HalfDays []datedEntry `yaml:"half_days"`
}

// DefaultRuleSet returns the built-in US equities calendar.
func DefaultRuleSet() (*TradingRuleSet, error) {
	return ParseRuleSet(defaultRulesYAML)
}

// LoadRuleSet reads a YAML rule document from path.
func LoadRuleSet(path string) (*TradingRuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	rs, err := ParseRuleSet(data)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return rs, nil
}

// ParseRuleSet builds a TradingRuleSet from a YAML document.
func ParseRuleSet(data []byte) (*TradingRuleSet, error) {
	var doc ruleDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}

	rs := &TradingRuleSet{
		Version:  doc.Version,
		fixed:    make(map[MonthDay]string, len(doc.FixedHolidays)),
		holidays: make(map[Date]string),
		halfDays: make(map[Date]string),
	}

	for _, f := range doc.FixedHolidays {
		if f.Month < 1 || f.Month > 12 || f.Day < 1 || f.Day > 31 {
			return nil, fmt.Errorf("%w: fixed holiday %q has month/day %d/%d", ErrInvalidRules, f.Name, f.Month, f.Day)
		}
		rs.fixed[MonthDay{Month: time.Month(f.Month), Day: f.Day}] = f.Name
	}

	seenYears := make(map[int]bool, len(doc.Years))
	for _, y := range doc.Years {
		if seenYears[y.Year] {
			return nil, fmt.Errorf("%w: year %d listed twice", ErrInvalidRules, y.Year)
		}
		seenYears[y.Year] = true
		rs.years = append(rs.years, y.Year)

		for _, h := range y.Holidays {
			d, err := parseYearDate(y.Year, h.Date)
			if err != nil {
				return nil, err
			}
			rs.holidays[d] = h.Name
		}
		for _, h := range y.HalfDays {
			d, err := parseYearDate(y.Year, h.Date)
			if err != nil {
				return nil, err
			}
			if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
				return nil, fmt.Errorf("%w: half day %s falls on a %s", ErrInvalidRules, d, wd)
			}
			if _, ok := rs.holidays[d]; ok {
				return nil, fmt.Errorf("%w: %s is both a holiday and a half day", ErrInvalidRules, d)
			}
			if _, ok := rs.fixed[d.MonthDay()]; ok {
				return nil, fmt.Errorf("%w: %s is both a fixed holiday and a half day", ErrInvalidRules, d)
			}
			rs.halfDays[d] = h.Name
		}
	}
	sort.Ints(rs.years)

	return rs, nil
}

func parseYearDate(year int, s string) (Date, error) {
	d, err := ParseDate(s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if d.Year != year {
		return Date{}, fmt.Errorf("%w: %s listed under year %d", ErrInvalidRules, d, year)
	}
	return d, nil
}

// HolidayName returns the configured name of the holiday on d, if any.
func (rs *TradingRuleSet) HolidayName(d Date) (string, bool) {
	if name, ok := rs.holidays[d]; ok {
		return name, true
	}
	name, ok := rs.fixed[d.MonthDay()]
	return name, ok
}

// HalfDayName returns the configured name of the early close on d, if any.
func (rs *TradingRuleSet) HalfDayName(d Date) (string, bool) {
	name, ok := rs.halfDays[d]
	return name, ok
}

// Years returns the configured years in ascending order.
func (rs *TradingRuleSet) Years() []int {
	out := make([]int, len(rs.years))
	copy(out, rs.years)
	return out
}

// LastYear returns the latest configured year, or 0 if none.
func (rs *TradingRuleSet) LastYear() int {
	if len(rs.years) == 0 {
		return 0
	}
	return rs.years[len(rs.years)-1]
}

// Covers reports whether year has a rule block.
func (rs *TradingRuleSet) Covers(year int) bool {
	i := sort.SearchInts(rs.years, year)
	return i < len(rs.years) && rs.years[i] == year
}

// Validate checks that every year in [year-back, year+ahead] is configured.
// Dates outside the configured years silently evaluate as ordinary trading
// days, so a service should call this at startup and refuse to run on a gap.
func (rs *TradingRuleSet) Validate(year, back, ahead int) error {
	var missing []int
	for y := year - back; y <= year+ahead; y++ {
		if !rs.Covers(y) {
			missing = append(missing, y)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v (configured %v)", ErrCoverageGap, missing, rs.years)
	}
	return nil
}
