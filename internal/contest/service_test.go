package contest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcal/internal/markethours"
	"marketcal/internal/model"
)

type memStore struct {
	mu    sync.Mutex
	games map[string]model.Game
	saves int
}

func newMemStore() *memStore { return &memStore{games: make(map[string]model.Game)} }

func (m *memStore) GetGameByGUID(_ context.Context, guid string) (*model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[guid]
	if !ok {
		return nil, model.ErrNotFound
	}
	g.Players = append([]model.Player(nil), g.Players...)
	return &g, nil
}

func (m *memStore) SaveGame(_ context.Context, g *model.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	cp.Players = append([]model.Player(nil), g.Players...)
	m.games[g.GUID] = cp
	m.saves++
	return nil
}

func (m *memStore) ListGames(_ context.Context, from time.Time, limit int) ([]model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Game
	for _, g := range m.games {
		if !g.StartAt.Before(from) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

type failingStore struct{ memStore }

func (f *failingStore) GetGameByGUID(context.Context, string) (*model.Game, error) {
	return nil, errors.New("disk on fire")
}

func newTestService(t *testing.T, now time.Time, store model.GameStore) *Service {
	t.Helper()
	cal, err := markethours.NewDefault(markethours.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return NewService(NewDeriver(cal), store, nil)
}

func TestCreateWeeklyStockGame_CreatesThenJoins(t *testing.T) {
	loc, err := time.LoadLocation(markethours.DefaultTimezone)
	require.NoError(t, err)
	now := time.Date(2024, time.January, 17, 10, 0, 0, 0, loc)
	store := newMemStore()
	svc := newTestService(t, now, store)

	var created []*model.Game
	svc.OnCreated(func(g *model.Game) { created = append(created, g) })

	res, err := svc.CreateWeeklyStockGame(context.Background(), CreateGameRequest{
		Players: []PlayerInput{{PhoneNumber: "+15550001", Username: "alice"}, {PhoneNumber: " +15550002 "}},
	})
	require.NoError(t, err)
	require.True(t, res.Created)
	assert.Equal(t, 2, res.Added)

	g := res.Game
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, "stock-week-20240115", g.GUID)
	assert.Equal(t, "Weekly Stock Contest - January 15th, 2024", g.Name)
	assert.Equal(t, model.GamePublic, g.Type)
	assert.Equal(t, LengthWeek, g.Length)
	assert.True(t, g.Enabled)
	assert.Equal(t, time.UTC, g.StartAt.Location())
	assert.True(t, time.Date(2024, time.January, 16, 14, 30, 0, 0, time.UTC).Equal(g.StartAt))
	assert.True(t, time.Date(2024, time.January, 19, 21, 0, 0, 0, time.UTC).Equal(g.EndAt))
	assert.True(t, g.Players[0].Balance.Equal(model.StartBalance))
	assert.Equal(t, "+15550002", g.Players[1].PhoneNumber)
	assert.Len(t, g.Invitees(), 1)

	res, err = svc.CreateWeeklyStockGame(context.Background(), CreateGameRequest{
		Type:    model.GamePrivate,
		Players: []PlayerInput{{PhoneNumber: "+15550002"}, {PhoneNumber: "+15550003"}},
	})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, g.ID, res.Game.ID, "same week joins the same contest")
	assert.Len(t, res.Game.Players, 3)
	assert.Equal(t, model.GamePublic, res.Game.Type, "join keeps the original type")

	assert.Len(t, created, 1)

	// Nothing new to add: no write.
	saves := store.saves
	res, err = svc.CreateWeeklyStockGame(context.Background(), CreateGameRequest{
		Players: []PlayerInput{{PhoneNumber: "+15550003"}},
	})
	require.NoError(t, err)
	assert.Zero(t, res.Added)
	assert.Equal(t, saves, store.saves)

	got, err := svc.GetGame(context.Background(), "stock-week-20240115")
	require.NoError(t, err)
	assert.Len(t, got.Players, 3)
}

func TestCreateWeeklyStockGame_FinishedWeekUsesNext(t *testing.T) {
	loc, err := time.LoadLocation(markethours.DefaultTimezone)
	require.NoError(t, err)
	saturday := time.Date(2024, time.January, 13, 12, 0, 0, 0, loc)
	svc := newTestService(t, saturday, newMemStore())

	res, err := svc.CreateWeeklyStockGame(context.Background(), CreateGameRequest{
		Players: []PlayerInput{{PhoneNumber: "+15550001"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "stock-week-20240115", res.Game.GUID)
	assert.Equal(t, "20240115", res.Game.PeriodKey)
	assert.Equal(t, "Weekly Stock Contest - January 15th, 2024", res.Game.Name)
	assert.True(t, time.Date(2024, time.January, 16, 14, 30, 0, 0, time.UTC).Equal(res.Game.StartAt))
}

func TestCreateWeeklyStockGame_Validation(t *testing.T) {
	svc := newTestService(t, time.Date(2024, time.January, 17, 15, 0, 0, 0, time.UTC), newMemStore())

	tests := []struct {
		name string
		req  CreateGameRequest
	}{
		{"no players", CreateGameRequest{}},
		{"blank phone", CreateGameRequest{Players: []PlayerInput{{PhoneNumber: "  "}}}},
		{"monthly length", CreateGameRequest{Length: LengthMonth, Players: []PlayerInput{{PhoneNumber: "1"}}}},
		{"unknown type", CreateGameRequest{Type: "Secret", Players: []PlayerInput{{PhoneNumber: "1"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateWeeklyStockGame(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestCreateWeeklyStockGame_StoreError(t *testing.T) {
	svc := newTestService(t, time.Date(2024, time.January, 17, 15, 0, 0, 0, time.UTC), &failingStore{})

	_, err := svc.CreateWeeklyStockGame(context.Background(), CreateGameRequest{
		Players: []PlayerInput{{PhoneNumber: "1"}},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidInput)
}

func TestListGames_ClampsLimit(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 3; i++ {
		start := time.Date(2024, time.January, 1+7*i, 14, 30, 0, 0, time.UTC)
		require.NoError(t, store.SaveGame(context.Background(), &model.Game{GUID: start.Format("20060102"), StartAt: start}))
	}
	svc := newTestService(t, time.Now(), store)

	games, err := svc.ListGames(context.Background(), time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC), 0)
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, "20240108", games[0].GUID)
}
