// Command marketcal prints the market status, session hours and contest
// periods at an instant, and inspects the session event journals.
//
// Usage:
//
//	go run ./cmd/marketcal --at=2024-11-29T12:00:00-05:00
//	go run ./cmd/marketcal --validate --back=1 --ahead=2
//	go run ./cmd/marketcal --events=20 --db=data/marketcal.db
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"marketcal/internal/contest"
	"marketcal/internal/markethours"
	"marketcal/internal/model"
	redisstore "marketcal/internal/store/redis"
	sqlitestore "marketcal/internal/store/sqlite"
)

func main() {
	at := flag.String("at", "", "Instant to evaluate, RFC 3339 with offset (default: now)")
	rulesPath := flag.String("rules", "", "Rule set YAML (default: built-in)")
	validate := flag.Bool("validate", false, "Check rule coverage around the current year and exit")
	back := flag.Int("back", 1, "Years before the current year that must be configured")
	ahead := flag.Int("ahead", 1, "Years after the current year that must be configured")
	asJSON := flag.Bool("json", false, "Print JSON")
	events := flag.Int("events", 0, "Print the N most recent journaled session events and exit")
	dbPath := flag.String("db", "data/marketcal.db", "Path to SQLite database (with --events)")
	history := flag.Int64("history", 0, "Print the N most recent session events from redis and exit")
	redisAddr := flag.String("redis", "localhost:6379", "Redis address (with --history)")
	flag.Parse()

	if err := run(os.Stdout, options{
		at: *at, rulesPath: *rulesPath, validate: *validate, back: *back, ahead: *ahead,
		asJSON: *asJSON, events: *events, dbPath: *dbPath, history: *history, redisAddr: *redisAddr,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "marketcal:", err)
		os.Exit(1)
	}
}

type options struct {
	at        string
	rulesPath string
	validate  bool
	back      int
	ahead     int
	asJSON    bool
	events    int
	dbPath    string
	history   int64
	redisAddr string
}

// report is everything printed for one instant.
type report struct {
	Status        markethours.MarketStatus `json:"status"`
	Weekly        contest.Period           `json:"weekly_period"`
	Guid          string                   `json:"guid"`
	Name          string                   `json:"name"`
	Phase         contest.PeriodPhase      `json:"phase"`
	WeeklyDraw    string                   `json:"weekly_draw"`
	MonthlyDraw   string                   `json:"monthly_draw"`
	CryptoWeek    string                   `json:"crypto_week"`
	PollingWindow *contest.Window          `json:"price_polling_window,omitempty"`
}

func run(w io.Writer, o options) error {
	ctx := context.Background()
	switch {
	case o.events > 0:
		db, err := sqlitestore.New(sqlitestore.Config{DBPath: o.dbPath})
		if err != nil {
			return err
		}
		defer db.Close()
		evs, err := db.RecentEvents(ctx, o.events)
		if err != nil {
			return err
		}
		return printEvents(w, evs, o.asJSON)
	case o.history > 0:
		r, err := redisstore.NewReader(redisstore.Config{Addr: o.redisAddr})
		if err != nil {
			return err
		}
		defer r.Close()
		evs, err := r.History(ctx, o.history)
		if err != nil {
			return err
		}
		return printEvents(w, evs, o.asJSON)
	}

	rules, err := markethours.DefaultRuleSet()
	if o.rulesPath != "" {
		rules, err = markethours.LoadRuleSet(o.rulesPath)
	}
	if err != nil {
		return err
	}
	cal, err := markethours.New(rules, nil)
	if err != nil {
		return err
	}

	if o.validate {
		year := cal.Now().Year()
		if err := rules.Validate(year, o.back, o.ahead); err != nil {
			return err
		}
		fmt.Fprintf(w, "rules %s cover %d-%d\n", rules.Version, year-o.back, year+o.ahead)
		return nil
	}

	t := cal.Now()
	if o.at != "" {
		if t, err = markethours.ParseInstant(o.at); err != nil {
			return err
		}
	}
	rep, err := build(cal, t)
	if err != nil {
		return err
	}
	if o.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	printReport(w, rep)
	return nil
}

func build(cal *markethours.Calendar, t time.Time) (*report, error) {
	st, err := cal.Status(t)
	if err != nil {
		return nil, err
	}
	d := contest.NewDeriver(cal)
	p, err := d.WeeklyPeriod(t, false)
	if err != nil {
		return nil, err
	}
	phase, err := d.Phase(t)
	if err != nil {
		return nil, err
	}
	rep := &report{
		Status:      st,
		Weekly:      p,
		Guid:        contest.GameGuid(p.Key, contest.GameTypeStock, contest.LengthWeek),
		Name:        contest.ContestName(p),
		Phase:       phase,
		WeeklyDraw:  d.WeeklyDrawGuid(t),
		MonthlyDraw: d.MonthlyDrawGuid(t),
		CryptoWeek:  contest.WeeklyCryptoPeriodKey(t),
	}
	if win, ok := cal.PricePollingWindow(st.Date); ok {
		rep.PollingWindow = &contest.Window{Start: win.Open, End: win.Close}
	}
	return rep, nil
}

func printReport(w io.Writer, rep *report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()
	st := rep.Status
	fmt.Fprintf(tw, "at\t%s\n", st.At.Format(time.RFC3339))
	fmt.Fprintf(tw, "status\t%s\n", st.String())
	if st.Session != nil {
		fmt.Fprintf(tw, "session\t%s - %s\n", st.Session.Open.Format("15:04"), st.Session.Close.Format("15:04 MST"))
	}
	if rep.PollingWindow != nil {
		fmt.Fprintf(tw, "price polling\t%s - %s\n", rep.PollingWindow.Start.Format("15:04"), rep.PollingWindow.End.Format("15:04 MST"))
	}
	fmt.Fprintf(tw, "previous close\t%s\n", st.PreviousClose.Format(time.RFC3339))
	fmt.Fprintf(tw, "next open\t%s\n", st.NextOpen.Format(time.RFC3339))
	fmt.Fprintf(tw, "contest\t%s (%s)\n", rep.Name, rep.Phase)
	fmt.Fprintf(tw, "guid\t%s\n", rep.Guid)
	fmt.Fprintf(tw, "window\t%s - %s\n", rep.Weekly.Start.Format(time.RFC3339), rep.Weekly.End.Format(time.RFC3339))
	fmt.Fprintf(tw, "draws\t%s, %s\n", rep.WeeklyDraw, rep.MonthlyDraw)
	fmt.Fprintf(tw, "crypto week\t%s\n", rep.CryptoWeek)
}

func printEvents(w io.Writer, evs []model.SessionEvent, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(evs)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()
	for _, ev := range evs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ev.At.Format(time.RFC3339), ev.Kind, ev.Status.String())
	}
	return nil
}
