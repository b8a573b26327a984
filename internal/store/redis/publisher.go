package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"marketcal/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// Keys shared by the publisher and readers in other processes.
const (
	KeyLatestStatus  = "market:status:latest"
	StreamEvents     = "market:events"
	ChannelStatus    = "pub:market:status"
	eventsMaxLen     = 5000
	defaultLatestTTL = 26 * time.Hour
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

func dial(cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Publisher writes session events to Redis: the latest status under a TTL
// key, every event to a capped stream, and a pub/sub announcement.
type Publisher struct {
	client *goredis.Client
	ttl    time.Duration
}

var _ model.StatusPublisher = (*Publisher)(nil)

// NewPublisher connects and pings the server.
func NewPublisher(cfg Config) (*Publisher, error) {
	client, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("redis publisher connected", "addr", cfg.Addr)
	return &Publisher{client: client, ttl: defaultLatestTTL}, nil
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Publish pipelines SET + XADD + PUBLISH for ev in one roundtrip.
func (p *Publisher) Publish(ctx context.Context, ev model.SessionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	payload := string(data)

	pipe := p.client.Pipeline()
	// Heartbeats refresh the latest status but are not journaled.
	pipe.Set(ctx, KeyLatestStatus, payload, p.ttl)
	if ev.Kind != model.EventHeartbeat {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: StreamEvents,
			MaxLen: eventsMaxLen,
			Approx: true,
			Values: map[string]interface{}{"kind": string(ev.Kind), "data": payload},
		})
	}
	pipe.Publish(ctx, ChannelStatus, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
