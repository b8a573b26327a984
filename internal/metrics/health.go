package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus tracks dependency and clock liveness for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	RulesVersion   string
	RedisEnabled   bool
	RedisConnected bool
	SQLiteOK       bool
	LastEventAt    time.Time

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	// clockStale is how old the last clock event may be before the
	// service reports degraded.
	clockStale time.Duration
	now        func() time.Time
}

// NewHealthStatus returns a health status. clockStale <= 0 disables the
// clock liveness check.
func NewHealthStatus(rulesVersion string, redisEnabled bool, clockStale time.Duration) *HealthStatus {
	return &HealthStatus{
		RulesVersion: rulesVersion,
		RedisEnabled: redisEnabled,
		StartedAt:    time.Now(),
		clockStale:   clockStale,
		now:          time.Now,
	}
}

// MarkEvent records that the session clock emitted an event.
func (h *HealthStatus) MarkEvent(at time.Time) {
	h.mu.Lock()
	h.LastEventAt = at
	h.mu.Unlock()
}

// SetSQLiteOK overrides the SQLite probe result.
func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// SetRedisConnected overrides the Redis probe result.
func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker probes dependencies once, then every interval.
// Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	go func() {
		probe()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// HealthReport is the /healthz response body.
type HealthReport struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	RulesVersion    string  `json:"rules_version"`
	RedisEnabled    bool    `json:"redis_enabled"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	LastEventAt     string  `json:"last_event_at,omitempty"`
	EventAge        string  `json:"event_age,omitempty"`
	LastCheckAt     string  `json:"last_check_at,omitempty"`
}

// Report summarizes health. Code is 200 when healthy, 503 otherwise.
func (h *HealthStatus) Report() (HealthReport, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	clockOK := true
	eventAge := ""
	if !h.LastEventAt.IsZero() {
		age := now.Sub(h.LastEventAt)
		eventAge = age.Round(time.Second).String()
		clockOK = h.clockStale <= 0 || age <= h.clockStale
	} else if h.clockStale > 0 && now.Sub(h.StartedAt) > h.clockStale {
		clockOK = false
	}
	redisOK := !h.RedisEnabled || h.RedisConnected

	status, code := "healthy", http.StatusOK
	if !h.SQLiteOK || !redisOK || !clockOK {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	if !h.SQLiteOK && !clockOK {
		status = "unhealthy"
	}

	r := HealthReport{
		Status:          status,
		Uptime:          now.Sub(h.StartedAt).Round(time.Second).String(),
		RulesVersion:    h.RulesVersion,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		EventAge:        eventAge,
	}
	if !h.LastEventAt.IsZero() {
		r.LastEventAt = h.LastEventAt.UTC().Format(time.RFC3339)
	}
	if !h.LastCheckAt.IsZero() {
		r.LastCheckAt = h.LastCheckAt.UTC().Format(time.RFC3339)
	}
	return r, code
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	report, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report)
}
