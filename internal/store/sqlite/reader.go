package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"marketcal/internal/model"
)

const gameColumns = `id, guid, name, type, length, period_key, start_at, end_at, enabled, created_at`

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*model.Game, error) {
	var (
		g                        model.Game
		typ                      string
		startMs, endMs, createMs int64
	)
	if err := row.Scan(&g.ID, &g.GUID, &g.Name, &typ, &g.Length, &g.PeriodKey, &startMs, &endMs, &g.Enabled, &createMs); err != nil {
		return nil, err
	}
	g.Type = model.GameType(typ)
	g.StartAt = fromMillis(startMs)
	g.EndAt = fromMillis(endMs)
	g.CreatedAt = fromMillis(createMs)
	return &g, nil
}

// GetGameByGUID returns model.ErrNotFound when no game has guid.
func (s *Store) GetGameByGUID(ctx context.Context, guid string) (*model.Game, error) {
	g, err := scanGame(s.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE guid = ?`, guid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite query game %s: %w", guid, err)
	}
	if g.Players, err = s.players(ctx, g.ID); err != nil {
		return nil, err
	}
	return g, nil
}

// ListGames returns games starting at or after from, ordered by start.
func (s *Store) ListGames(ctx context.Context, from time.Time, limit int) ([]model.Game, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+gameColumns+`
		FROM games
		WHERE start_at >= ?
		ORDER BY start_at ASC
		LIMIT ?
	`, from.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query games: %w", err)
	}

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite scan game: %w", err)
		}
		games = append(games, *g)
	}
	// The pool has a single connection, so rows must be released before
	// the player queries below.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range games {
		if games[i].Players, err = s.players(ctx, games[i].ID); err != nil {
			return nil, err
		}
	}
	return games, nil
}

func (s *Store) players(ctx context.Context, gameID string) ([]model.Player, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT phone_number, COALESCE(user_id, ''), COALESCE(username, ''), balance
		FROM game_players
		WHERE game_id = ?
		ORDER BY seq ASC
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query players: %w", err)
	}
	defer rows.Close()

	var out []model.Player
	for rows.Next() {
		var (
			p   model.Player
			bal string
		)
		if err := rows.Scan(&p.PhoneNumber, &p.UserID, &p.Username, &bal); err != nil {
			return nil, fmt.Errorf("sqlite scan player: %w", err)
		}
		if p.Balance, err = decimal.NewFromString(bal); err != nil {
			return nil, fmt.Errorf("player %s balance %q: %w", p.PhoneNumber, bal, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecentEvents returns up to limit journaled session events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]model.SessionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, at, status FROM session_events ORDER BY at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query session_events: %w", err)
	}
	defer rows.Close()

	var out []model.SessionEvent
	for rows.Next() {
		var (
			ev     model.SessionEvent
			kind   string
			atMs   int64
			status string
		)
		if err := rows.Scan(&kind, &atMs, &status); err != nil {
			return nil, fmt.Errorf("sqlite scan session_events: %w", err)
		}
		ev.Kind = model.SessionEventKind(kind)
		ev.At = fromMillis(atMs)
		if err := json.Unmarshal([]byte(status), &ev.Status); err != nil {
			return nil, fmt.Errorf("decode status: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
