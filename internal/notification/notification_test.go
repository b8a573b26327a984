package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcal/internal/markethours"
	"marketcal/internal/model"
)

type recorder struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recorder) Send(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recorder) sent() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

func TestWebhookNotifier_Send(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2024, time.January, 16, 14, 30, 0, 0, time.UTC) }

	err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "Market open", Message: "opened", Fields: map[string]string{"at": "x"}})
	require.NoError(t, err)
	assert.Equal(t, AlertInfo, got.Level)
	assert.Equal(t, "Market open", got.Title)
	assert.Equal(t, "x", got.Fields["at"])
	assert.Equal(t, "2024-01-16T14:30:00Z", got.TS)
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "t"})
	assert.ErrorContains(t, err, "502")
}

func TestTelegramNotifier_Send(t *testing.T) {
	var body map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	require.NoError(t, n.Send(context.Background(), Alert{Level: AlertCritical, Title: "Gap", Message: "year 2031 missing."}))

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "MarkdownV2", body["parse_mode"])
	assert.Contains(t, body["text"], `year 2031 missing\.`)
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `stock\-week\-20240115`, escapeMarkdown("stock-week-20240115"))
	assert.Equal(t, `a\_b \(c\)\!`, escapeMarkdown("a_b (c)!"))
	assert.Equal(t, "plain", escapeMarkdown("plain"))
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("down")}
	err := Multi{ok, bad}.Send(context.Background(), Alert{Title: "t"})
	assert.ErrorContains(t, err, "down")
	assert.Len(t, ok.sent(), 1)
	assert.Len(t, bad.sent(), 1)
}

func TestEventAlert(t *testing.T) {
	at := time.Date(2024, time.November, 29, 13, 0, 0, 0, time.UTC)

	_, ok := EventAlert(model.SessionEvent{Kind: model.EventHeartbeat, At: at})
	assert.False(t, ok)

	a, ok := EventAlert(model.SessionEvent{
		Kind: model.EventOpen,
		At:   at,
		Status: markethours.MarketStatus{
			HalfDay: true,
			Session: &markethours.SessionWindow{Close: at.Add(3*time.Hour + 30*time.Minute)},
		},
	})
	require.True(t, ok)
	assert.Equal(t, "Market open", a.Title)
	assert.Contains(t, a.Message, "early close")
	assert.Equal(t, "2024-11-29T16:30:00Z", a.Fields["closes"])

	a, ok = EventAlert(model.SessionEvent{Kind: model.EventClose, At: at, Status: markethours.MarketStatus{NextOpen: at.Add(72 * time.Hour)}})
	require.True(t, ok)
	assert.Contains(t, a.Fields, "next_open")
}

func TestDispatcher_Run(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, 0)

	events := make(chan model.SessionEvent, 3)
	events <- model.SessionEvent{Kind: model.EventHeartbeat, At: time.Now()}
	events <- model.SessionEvent{Kind: model.EventClose, At: time.Now()}
	events <- model.SessionEvent{Kind: model.EventPollingEnd, At: time.Now()}
	close(events)

	d.Run(context.Background(), events)

	sent := rec.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Market closed", sent[0].Title)
	assert.Equal(t, "Closing prices settled", sent[1].Title)
}

func TestDispatcher_CalendarErrorThrottled(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, time.Hour)
	now := time.Date(2031, time.January, 8, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	gap := markethours.ErrConfigurationGap
	d.CalendarError(context.Background(), gap)
	d.CalendarError(context.Background(), gap)
	now = now.Add(61 * time.Minute)
	d.CalendarError(context.Background(), gap)

	sent := rec.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, AlertCritical, sent[0].Level)
}

func TestDispatcher_GameCreated(t *testing.T) {
	rec := &recorder{}
	NewDispatcher(rec, 0).GameCreated(context.Background(), &model.Game{
		GUID:    "stock-week-20240115",
		Name:    "Weekly Stock Contest - January 15th, 2024",
		StartAt: time.Date(2024, time.January, 16, 14, 30, 0, 0, time.UTC),
		EndAt:   time.Date(2024, time.January, 19, 21, 0, 0, 0, time.UTC),
		Players: []model.Player{{PhoneNumber: "1", Balance: decimal.NewFromInt(1000)}},
	})

	sent := rec.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "stock-week-20240115", sent[0].Fields["guid"])
	assert.Equal(t, "1", sent[0].Fields["players"])
	assert.Equal(t, "end: 2024-01-19T21:00:00Z\nguid: stock-week-20240115\nplayers: 1\nstart: 2024-01-16T14:30:00Z", sent[0].FieldsText())
}
