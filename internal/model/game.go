package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GameType distinguishes invite-only contests from open ones.
type GameType string

const (
	GamePublic  GameType = "Public"
	GamePrivate GameType = "Private"
)

// Valid reports whether t is a known game type.
func (t GameType) Valid() bool {
	return t == GamePublic || t == GamePrivate
}

// StartBalance is the virtual cash every player begins a contest with.
var StartBalance = decimal.NewFromInt(1000)

// Game is a persisted contest record. StartAt and EndAt are absolute
// instants and are always stored as UTC.
type Game struct {
	ID        string    `json:"id"`
	GUID      string    `json:"guid"`
	Name      string    `json:"name"`
	Type      GameType  `json:"type"`
	Length    string    `json:"length"`
	PeriodKey string    `json:"period_key"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	Players   []Player  `json:"players"`
}

// Player is one participant of a Game, keyed by phone number. UserID and
// Username are empty until the invitee signs up.
type Player struct {
	PhoneNumber string          `json:"phone_number"`
	UserID      string          `json:"user_id,omitempty"`
	Username    string          `json:"username,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
}

// HasPlayer reports whether phone is already in the game.
func (g *Game) HasPlayer(phone string) bool {
	for _, p := range g.Players {
		if p.PhoneNumber == phone {
			return true
		}
	}
	return false
}

// Invitees returns the players without an account.
func (g *Game) Invitees() []Player {
	var out []Player
	for _, p := range g.Players {
		if p.Username == "" {
			out = append(out, p)
		}
	}
	return out
}
