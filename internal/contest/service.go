package contest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketcal/internal/model"
)

// ErrInvalidInput is returned for malformed game requests.
var ErrInvalidInput = errors.New("invalid input")

// PlayerInput identifies one participant in a create request.
type PlayerInput struct {
	PhoneNumber string `json:"phone_number"`
	UserID      string `json:"user_id,omitempty"`
	Username    string `json:"username,omitempty"`
}

// CreateGameRequest asks for a stock contest in the current period.
type CreateGameRequest struct {
	Type    model.GameType `json:"type"`
	Length  string         `json:"length"`
	Players []PlayerInput  `json:"players"`
}

// CreateResult reports what CreateWeeklyStockGame did.
type CreateResult struct {
	Game    *model.Game `json:"game"`
	Created bool        `json:"created"`
	Added   int         `json:"added"`
}

// Service creates and looks up contest records.
type Service struct {
	deriver *Deriver
	store   model.GameStore
	log     *slog.Logger

	mu        sync.Mutex // serializes get-then-save upserts
	onCreated []func(*model.Game)
}

// NewService wires a Service to its period deriver and store.
func NewService(d *Deriver, store model.GameStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{deriver: d, store: store, log: log.With("component", "contest")}
}

// OnCreated registers fn to run after a new game is stored. Joins of an
// existing game do not trigger it.
func (s *Service) OnCreated(fn func(*model.Game)) {
	s.mu.Lock()
	s.onCreated = append(s.onCreated, fn)
	s.mu.Unlock()
}

// Deriver returns the period deriver.
func (s *Service) Deriver() *Deriver { return s.deriver }

func validate(req *CreateGameRequest) error {
	if req.Length == "" {
		req.Length = LengthWeek
	}
	if req.Length != LengthWeek {
		return fmt.Errorf("%w: unsupported game length %q", ErrInvalidInput, req.Length)
	}
	if req.Type == "" {
		req.Type = model.GamePublic
	}
	if !req.Type.Valid() {
		return fmt.Errorf("%w: unknown game type %q", ErrInvalidInput, req.Type)
	}
	if len(req.Players) == 0 {
		return fmt.Errorf("%w: at least one player is required", ErrInvalidInput)
	}
	for i := range req.Players {
		req.Players[i].PhoneNumber = strings.TrimSpace(req.Players[i].PhoneNumber)
		if req.Players[i].PhoneNumber == "" {
			return fmt.Errorf("%w: player %d has no phone number", ErrInvalidInput, i)
		}
	}
	return nil
}

// CreateWeeklyStockGame creates the stock contest for the current week, or
// joins the players to it if one already exists. Once the current week's
// last session has closed, the contest for the following week is used.
func (s *Service) CreateWeeklyStockGame(ctx context.Context, req CreateGameRequest) (*CreateResult, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	now := s.deriver.Calendar().Now()
	period, err := s.deriver.WeeklyPeriod(now, false)
	if err != nil {
		return nil, fmt.Errorf("derive weekly period: %w", err)
	}
	guid := GameGuid(period.Key, GameTypeStock, req.Length)

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.store.GetGameByGUID(ctx, guid)
	created := false
	switch {
	case errors.Is(err, model.ErrNotFound):
		g = &model.Game{
			ID:        uuid.NewString(),
			GUID:      guid,
			Name:      ContestName(period),
			Type:      req.Type,
			Length:    req.Length,
			PeriodKey: period.Key,
			StartAt:   period.Start.UTC(),
			EndAt:     period.End.UTC(),
			Enabled:   true,
			CreatedAt: now.UTC().Truncate(time.Millisecond),
		}
		created = true
	case err != nil:
		return nil, fmt.Errorf("get game %s: %w", guid, err)
	}

	added := 0
	for _, p := range req.Players {
		if g.HasPlayer(p.PhoneNumber) {
			continue
		}
		g.Players = append(g.Players, model.Player{
			PhoneNumber: p.PhoneNumber,
			UserID:      p.UserID,
			Username:    p.Username,
			Balance:     model.StartBalance,
		})
		added++
	}

	if created || added > 0 {
		if err := s.store.SaveGame(ctx, g); err != nil {
			return nil, fmt.Errorf("save game %s: %w", guid, err)
		}
	}

	if created {
		s.log.Info("game created", "guid", guid, "start", period.Start, "end", period.End, "players", len(g.Players))
		for _, fn := range s.onCreated {
			fn(g)
		}
	} else {
		s.log.Info("game joined", "guid", guid, "added", added)
	}
	return &CreateResult{Game: g, Created: created, Added: added}, nil
}

// GetGame returns the game with guid.
func (s *Service) GetGame(ctx context.Context, guid string) (*model.Game, error) {
	return s.store.GetGameByGUID(ctx, guid)
}

// ListGames returns games starting at or after from, oldest first.
func (s *Service) ListGames(ctx context.Context, from time.Time, limit int) ([]model.Game, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListGames(ctx, from, limit)
}
