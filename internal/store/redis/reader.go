package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"marketcal/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// Reader gives other processes read access to what Publisher wrote.
type Reader struct {
	client *goredis.Client
}

// NewReader connects and pings the server.
func NewReader(cfg Config) (*Reader, error) {
	client, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("redis reader connected", "addr", cfg.Addr)
	return &Reader{client: client}, nil
}

// Client returns the underlying Redis client for health checks.
func (r *Reader) Client() *goredis.Client { return r.client }

// Latest returns the most recently published event, or model.ErrNotFound
// once the key has expired or before anything was published.
func (r *Reader) Latest(ctx context.Context) (*model.SessionEvent, error) {
	data, err := r.client.Get(ctx, KeyLatestStatus).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", KeyLatestStatus, err)
	}
	return decodeEvent(data)
}

// History returns up to n journaled boundary events, newest first.
func (r *Reader) History(ctx context.Context, n int64) ([]model.SessionEvent, error) {
	msgs, err := r.client.XRevRangeN(ctx, StreamEvents, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", StreamEvents, err)
	}
	out := make([]model.SessionEvent, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		ev, err := decodeEvent([]byte(raw))
		if err != nil {
			slog.Warn("skipping undecodable stream entry", "id", m.ID, "error", err)
			continue
		}
		out = append(out, *ev)
	}
	return out, nil
}

// Subscribe streams announced events until ctx is cancelled.
func (r *Reader) Subscribe(ctx context.Context) (<-chan model.SessionEvent, error) {
	sub := r.client.Subscribe(ctx, ChannelStatus)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis SUBSCRIBE %s: %w", ChannelStatus, err)
	}

	out := make(chan model.SessionEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := decodeEvent([]byte(msg.Payload))
				if err != nil {
					slog.Warn("skipping undecodable status message", "error", err)
					continue
				}
				select {
				case out <- *ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}

func decodeEvent(data []byte) (*model.SessionEvent, error) {
	var ev model.SessionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode session event: %w", err)
	}
	return &ev, nil
}
