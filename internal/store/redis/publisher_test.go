package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcal/internal/model"
)

// Requires a live server: REDIS_TEST_ADDR=localhost:6379 go test ./internal/store/redis
func TestPublisherReader_Roundtrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	cfg := Config{Addr: addr, DB: 15}

	pub, err := NewPublisher(cfg)
	require.NoError(t, err)
	defer pub.Close()
	rd, err := NewReader(cfg)
	require.NoError(t, err)
	defer rd.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pub.Client().Del(ctx, KeyLatestStatus, StreamEvents).Err())

	_, err = rd.Latest(ctx)
	assert.ErrorIs(t, err, model.ErrNotFound)

	sub, err := rd.Subscribe(ctx)
	require.NoError(t, err)

	at := time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC)
	require.NoError(t, pub.Publish(ctx, model.SessionEvent{Kind: model.EventOpen, At: at}))
	require.NoError(t, pub.Publish(ctx, model.SessionEvent{Kind: model.EventHeartbeat, At: at.Add(time.Minute)}))

	latest, err := rd.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.EventHeartbeat, latest.Kind)

	hist, err := rd.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1, "heartbeats are not journaled")
	assert.Equal(t, model.EventOpen, hist[0].Kind)

	select {
	case ev := <-sub:
		assert.Equal(t, model.EventOpen, ev.Kind)
		assert.True(t, at.Equal(ev.At))
	case <-ctx.Done():
		t.Fatal("no pub/sub message")
	}
}
