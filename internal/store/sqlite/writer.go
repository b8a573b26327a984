package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"marketcal/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/marketcal.db"
}

// Store persists games and the session event journal. Instants are stored
// as UTC unix milliseconds.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

var _ model.GameStore = (*Store)(nil)

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log := slog.Default().With("component", "sqlite")
	log.Info("opened database", "path", cfg.DBPath)
	return &Store{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS games (
			id         TEXT    PRIMARY KEY,
			guid       TEXT    NOT NULL UNIQUE,
			name       TEXT    NOT NULL,
			type       TEXT    NOT NULL,
			length     TEXT    NOT NULL,
			period_key TEXT    NOT NULL,
			start_at   INTEGER NOT NULL,
			end_at     INTEGER NOT NULL,
			enabled    INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_games_start ON games (start_at);

		CREATE TABLE IF NOT EXISTS game_players (
			game_id      TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			seq          INTEGER NOT NULL,
			phone_number TEXT NOT NULL,
			user_id      TEXT,
			username     TEXT,
			balance      TEXT NOT NULL,
			PRIMARY KEY (game_id, phone_number)
		);

		CREATE TABLE IF NOT EXISTS session_events (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			kind   TEXT    NOT NULL,
			at     INTEGER NOT NULL,
			status TEXT    NOT NULL
		);
	`)
	return err
}

// SaveGame upserts g and replaces its player list in one transaction.
func (s *Store) SaveGame(ctx context.Context, g *model.Game) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO games (id, guid, name, type, length, period_key, start_at, end_at, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			enabled = excluded.enabled,
			start_at = excluded.start_at,
			end_at = excluded.end_at
	`, g.ID, g.GUID, g.Name, string(g.Type), g.Length, g.PeriodKey,
		g.StartAt.UnixMilli(), g.EndAt.UnixMilli(), g.Enabled, g.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite upsert game %s: %w", g.GUID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM game_players WHERE game_id = ?`, g.ID); err != nil {
		return fmt.Errorf("sqlite clear players %s: %w", g.GUID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO game_players (game_id, seq, phone_number, user_id, username, balance)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range g.Players {
		if _, err := stmt.ExecContext(ctx, g.ID, i, p.PhoneNumber, p.UserID, p.Username, p.Balance.String()); err != nil {
			return fmt.Errorf("sqlite insert player %s: %w", p.PhoneNumber, err)
		}
	}

	return tx.Commit()
}

// RunEvents journals session events from evCh in batched transactions.
// Flushes every batchSize events OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or evCh is closed.
func (s *Store) RunEvents(ctx context.Context, evCh <-chan model.SessionEvent) {
	batch := make([]model.SessionEvent, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.insertEvents(batch); err != nil {
			s.log.Error("event batch insert failed", "error", err, "count", len(batch))
		} else {
			s.log.Debug("committed events", "count", len(batch), "took", time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case ev, ok := <-evCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (s *Store) insertEvents(events []model.SessionEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO session_events (kind, at, status) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		status, err := json.Marshal(ev.Status)
		if err != nil {
			return fmt.Errorf("marshal status: %w", err)
		}
		if _, err := stmt.Exec(string(ev.Kind), ev.At.UnixMilli(), string(status)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// PruneEvents deletes journaled heartbeats recorded before cutoff and
// returns how many rows were removed. Boundary events are kept.
func (s *Store) PruneEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM session_events WHERE kind = ? AND at < ?`,
		string(model.EventHeartbeat), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite prune session_events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
