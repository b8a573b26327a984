package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketcal/internal/model"
)

type chanSource struct {
	ch  chan model.SessionEvent
	err error
}

func (s *chanSource) Subscribe(context.Context) (<-chan model.SessionEvent, error) {
	return s.ch, s.err
}

func TestPubSubRouter_Relays(t *testing.T) {
	hub := NewHub()
	src := &chanSource{ch: make(chan model.SessionEvent, 2)}
	router := NewPubSubRouter(hub, src)

	var seen []model.SessionEventKind
	router.OnEvent = func(ev model.SessionEvent) { seen = append(seen, ev.Kind) }

	at := time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC)
	src.ch <- model.SessionEvent{Kind: model.EventHeartbeat, At: at}
	src.ch <- model.SessionEvent{Kind: model.EventOpen, At: at}
	close(src.ch)

	if err := router.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 relayed events, got %v", seen)
	}
	if got := hub.GetChannelSeq(ChannelStatus); got != 2 {
		t.Errorf("status channel seq = %d, want 2", got)
	}
	if got := hub.GetChannelSeq(ChannelSession); got != 1 {
		t.Errorf("session channel seq = %d, want 1 (heartbeats excluded)", got)
	}
}

func TestPubSubRouter_SubscribeError(t *testing.T) {
	router := NewPubSubRouter(NewHub(), &chanSource{err: errors.New("no redis")})
	if err := router.Run(context.Background()); err == nil {
		t.Fatal("expected subscribe error")
	}
}
