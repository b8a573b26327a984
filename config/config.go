package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Calendar
	Timezone        string
	RulesPath       string // empty uses the built-in rule set
	RulesYearsBack  int
	RulesYearsAhead int
	MaxLookbackDays int
	RealtimePrices  bool

	// Session clock
	Heartbeat time.Duration

	// Maintenance
	RulesAuditSchedule string
	JournalRetention   time.Duration

	// Infrastructure
	RedisAddr     string // empty disables redis
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	MetricsAddr   string
	GatewayAddr   string

	// Logging
	LogLevel string

	// Alerts
	AlertWebhookURL  string
	TelegramBotToken string
	TelegramChatID   string
	AlertThrottle    time.Duration
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first; it
// never overrides variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	c := &Config{
		Timezone:  getEnv("TIMEZONE", "America/New_York"),
		RulesPath: getEnv("RULES_PATH", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/marketcal.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9091"),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ":9090"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		RulesAuditSchedule: getEnv("RULES_AUDIT_SCHEDULE", "0 6 * * *"),

		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}

	var err error
	if c.RulesYearsBack, err = getInt("RULES_YEARS_BACK", 1); err != nil {
		return nil, err
	}
	if c.RulesYearsAhead, err = getInt("RULES_YEARS_AHEAD", 1); err != nil {
		return nil, err
	}
	if c.MaxLookbackDays, err = getInt("MAX_LOOKBACK_DAYS", 14); err != nil {
		return nil, err
	}
	if c.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if c.RealtimePrices, err = getBool("REALTIME_PRICES", false); err != nil {
		return nil, err
	}
	if c.Heartbeat, err = getDuration("HEARTBEAT_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if c.AlertThrottle, err = getDuration("ALERT_THROTTLE", time.Hour); err != nil {
		return nil, err
	}
	if c.JournalRetention, err = getDuration("JOURNAL_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}

	if c.RulesYearsBack < 0 || c.RulesYearsAhead < 0 {
		return nil, fmt.Errorf("config: RULES_YEARS_BACK and RULES_YEARS_AHEAD must be >= 0")
	}
	if c.MaxLookbackDays < 1 {
		return nil, fmt.Errorf("config: MAX_LOOKBACK_DAYS must be >= 1, got %d", c.MaxLookbackDays)
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return nil, fmt.Errorf("config: TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return c, nil
}

// RedisEnabled reports whether a redis address was configured.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
