// Command calendard serves the market calendar and contest API, publishes
// session boundary events to redis and websocket clients, and journals
// them to sqlite.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"marketcal/config"
	"marketcal/internal/contest"
	"marketcal/internal/gateway"
	"marketcal/internal/logger"
	"marketcal/internal/markethours"
	"marketcal/internal/metrics"
	"marketcal/internal/model"
	"marketcal/internal/notification"
	"marketcal/internal/scheduler"
	"marketcal/internal/sessionclock"
	redisstore "marketcal/internal/store/redis"
	sqlitestore "marketcal/internal/store/sqlite"
)

func main() {
	relay := flag.Bool("relay", false, "serve events relayed from redis instead of running the session clock")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logger.Init("calendard", level)

	if err := run(cfg, *relay, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func loadCalendar(cfg *config.Config) (*markethours.Calendar, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", cfg.Timezone, err)
	}
	var rules *markethours.TradingRuleSet
	if cfg.RulesPath != "" {
		rules, err = markethours.LoadRuleSet(cfg.RulesPath)
	} else {
		rules, err = markethours.DefaultRuleSet()
	}
	if err != nil {
		return nil, err
	}
	cal, err := markethours.New(rules, loc,
		markethours.WithMaxLookbackDays(cfg.MaxLookbackDays),
		markethours.WithRealtimePrices(cfg.RealtimePrices),
	)
	if err != nil {
		return nil, err
	}
	if err := rules.Validate(cal.Now().Year(), cfg.RulesYearsBack, cfg.RulesYearsAhead); err != nil {
		return nil, err
	}
	return cal, nil
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier()}
	if cfg.AlertWebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}
	if cfg.TelegramBotToken != "" {
		n = append(n, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	return n
}

func run(cfg *config.Config, relay bool, log *slog.Logger) error {
	if relay && !cfg.RedisEnabled() {
		return errors.New("-relay requires REDIS_ADDR")
	}

	cal, err := loadCalendar(cfg)
	if err != nil {
		return err
	}
	rules := cal.Rules()
	log.Info("calendar loaded", "timezone", cfg.Timezone, "rules_version", rules.Version, "years", rules.Years())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	prom.RulesLastYear.Set(float64(rules.LastYear()))
	health := metrics.NewHealthStatus(rules.Version, cfg.RedisEnabled(), 2*cfg.Heartbeat)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, prom, health)
	metricsSrv.Start()

	// ---- SQLite ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	db, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		return fmt.Errorf("sqlite init: %w", err)
	}
	defer db.Close()
	health.SetSQLiteOK(true)

	// ---- Alerts ----
	alerts := notification.NewDispatcher(buildNotifier(cfg), cfg.AlertThrottle)

	// ---- Contests ----
	deriver := contest.NewDeriver(cal)
	games := contest.NewService(deriver, db, log)
	games.OnCreated(func(g *model.Game) {
		go alerts.GameCreated(context.Background(), g)
	})

	// ---- Maintenance jobs ----
	sched := scheduler.New(ctx, cal.Location())
	sched.OnResult = prom.ObserveJob
	audit := &scheduler.RulesAudit{
		Cal:   cal,
		Back:  cfg.RulesYearsBack,
		Ahead: cfg.RulesYearsAhead + 1,
		OnGap: alerts.CalendarError,
	}
	if err := sched.AddJob(cfg.RulesAuditSchedule, audit); err != nil {
		return fmt.Errorf("schedule %s: %w", audit.Name(), err)
	}
	if err := sched.AddJob("@daily", &scheduler.JournalPrune{Store: db, Retention: cfg.JournalRetention}); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	hub := gateway.NewHub()
	hub.OnClientsChanged = func(n int) { prom.WSClients.Set(float64(n)) }

	// ---- Event sources ----
	if relay {
		reader, err := redisstore.NewReader(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return fmt.Errorf("redis reader: %w", err)
		}
		defer reader.Close()
		health.SetRedisConnected(true)
		health.StartLivenessChecker(ctx, reader.Client(), db.DB(), 10*time.Second)

		router := gateway.NewPubSubRouter(hub, reader)
		router.OnEvent = func(ev model.SessionEvent) {
			prom.ObserveEvent(ev)
			health.MarkEvent(ev.At)
		}
		go func() {
			if err := router.Run(ctx); err != nil {
				log.Error("redis relay stopped", "error", err)
				cancel()
			}
		}()
	} else {
		stop, err := startClock(ctx, cfg, cal, hub, db, prom, health, alerts, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	// ---- Gateway ----
	api := &gateway.API{
		Cal:     cal,
		Deriver: deriver,
		Games:   games,
		Hub:     hub,
		Metrics: prom,
		Started: time.Now(),
	}
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	srv := &http.Server{Addr: cfg.GatewayAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway serving", "addr", cfg.GatewayAddr, "relay", relay)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		cancel()
	}
	log.Info("shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	shutdown(shutdownCtx, log,
		stopper{"gateway", srv.Shutdown},
		stopper{"metrics", metricsSrv.Stop},
	)
	return err
}

type stopper struct {
	name string
	stop func(context.Context) error
}

// shutdown stops every server in order and logs the ones that fail.
func shutdown(ctx context.Context, log *slog.Logger, stops ...stopper) error {
	var errs []error
	for _, s := range stops {
		if err := s.stop(ctx); err != nil {
			log.Warn("shutdown failed", "server", s.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// startClock runs the session watcher and fans its events out to the hub,
// the sqlite journal, redis and alerts. The returned func waits for the
// journal to flush.
func startClock(
	ctx context.Context,
	cfg *config.Config,
	cal *markethours.Calendar,
	hub *gateway.Hub,
	db *sqlitestore.Store,
	prom *metrics.Metrics,
	health *metrics.HealthStatus,
	alerts *notification.Dispatcher,
	log *slog.Logger,
) (func(), error) {
	watcher := sessionclock.New(cal, sessionclock.Config{Heartbeat: cfg.Heartbeat})
	watcher.OnEvent = func(ev model.SessionEvent) {
		prom.ObserveEvent(ev)
		health.MarkEvent(ev.At)
	}
	watcher.OnDrop = prom.DroppedEvents.Inc
	watcher.OnError = func(err error) {
		prom.CalendarErrors.Inc()
		alerts.CalendarError(ctx, err)
	}

	hubCh := watcher.Subscribe(64)
	journalCh := watcher.Subscribe(256)
	alertCh := watcher.Subscribe(16)

	go hub.Run(ctx, hubCh)
	go alerts.Run(ctx, alertCh)

	journalDone := make(chan struct{})
	go func() {
		defer close(journalDone)
		db.RunEvents(ctx, journalCh)
	}()

	health.StartLivenessChecker(ctx, nil, db.DB(), 10*time.Second)
	if cfg.RedisEnabled() {
		health.SetRedisConnected(false)
		go publishRedis(ctx, cfg, watcher.Subscribe(64), prom, health, log)
	}

	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.Error("session clock stopped", "error", err)
		}
	}()

	return func() { <-journalDone }, nil
}

// publishRedis connects to redis, retrying in the background, then relays
// events through the circuit breaker. Until the first connect succeeds the
// service runs degraded and events beyond the channel buffer are dropped.
func publishRedis(
	ctx context.Context,
	cfg *config.Config,
	events <-chan model.SessionEvent,
	prom *metrics.Metrics,
	health *metrics.HealthStatus,
	log *slog.Logger,
) {
	rcfg := redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	var pub *redisstore.Publisher
	err := redisstore.Retry(ctx, time.Second, time.Minute,
		func() (err error) {
			pub, err = redisstore.NewPublisher(rcfg)
			return err
		},
		func(attempt int, err error) {
			// Redis is optional; events still reach websocket clients and sqlite.
			if attempt == 1 {
				log.Warn("redis unavailable, retrying in background", "addr", cfg.RedisAddr, "error", err)
				return
			}
			log.Debug("redis reconnect failed", "attempt", attempt, "error", err)
		})
	if err != nil {
		for range events {
		}
		return
	}
	health.StartLivenessChecker(ctx, pub.Client(), nil, 10*time.Second)

	cb := redisstore.NewCircuitBreaker(5, 30*time.Second)
	cb.OnStateChange(func(from, to redisstore.State) {
		prom.ObserveBreaker(int(to))
		log.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
	})
	buffered := redisstore.NewBufferedPublisher(pub, cb, 1000)
	buffered.OnBuffer = prom.RedisBufferedEvents.Inc

	for ev := range events {
		if err := buffered.Publish(ctx, ev); err != nil {
			prom.RedisPublishErrors.Inc()
		}
	}
	buffered.Close()
}
