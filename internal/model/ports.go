package model

import (
	"context"
	"errors"
	"time"

	"marketcal/internal/markethours"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ── Storage Port Interfaces ──
// These interfaces decouple the contest and session logic from concrete
// storage implementations (SQLite, Redis).

// GameStore persists contest records.
type GameStore interface {
	// GetGameByGUID returns ErrNotFound if no game has that guid.
	GetGameByGUID(ctx context.Context, guid string) (*Game, error)

	// SaveGame inserts or updates the game and its players.
	SaveGame(ctx context.Context, g *Game) error

	// ListGames returns games starting at or after from, oldest first.
	ListGames(ctx context.Context, from time.Time, limit int) ([]Game, error)

	// Close releases underlying resources.
	Close() error
}

// SessionEventKind labels a session boundary.
type SessionEventKind string

const (
	EventOpen       SessionEventKind = "open"
	EventClose      SessionEventKind = "close"
	EventPollingEnd SessionEventKind = "polling_end"
	EventHeartbeat  SessionEventKind = "heartbeat"
)

// SessionEvent is emitted when the market crosses a session boundary.
type SessionEvent struct {
	Kind   SessionEventKind         `json:"kind"`
	At     time.Time                `json:"at"`
	Status markethours.MarketStatus `json:"status"`
}

// StatusPublisher distributes session events to other processes.
type StatusPublisher interface {
	// Publish stores the event as the latest status and announces it.
	Publish(ctx context.Context, ev SessionEvent) error

	// Close releases underlying resources.
	Close() error
}
