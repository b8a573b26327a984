package gateway

import (
	"time"

	"marketcal/internal/contest"
	"marketcal/internal/markethours"
)

// StatusResponse is the REST response type for /api/market/status.
type StatusResponse struct {
	markethours.MarketStatus
	Summary string `json:"summary"`
}

// SessionResponse is the REST response type for /api/market/session.
type SessionResponse struct {
	Date         markethours.Date           `json:"date"`
	Weekday      string                     `json:"weekday"`
	TradingDay   bool                       `json:"trading_day"`
	Holiday      string                     `json:"holiday,omitempty"`
	HalfDay      string                     `json:"half_day,omitempty"`
	Session      *markethours.SessionWindow `json:"session,omitempty"`
	PricePolling *markethours.SessionWindow `json:"price_polling,omitempty"`
}

// BoundaryResponse is the REST response type for /api/market/previous and
// /api/market/next.
type BoundaryResponse struct {
	Boundary string    `json:"boundary"`
	From     time.Time `json:"from"`
	At       time.Time `json:"at"`
	AtUTC    string    `json:"at_utc"`
}

// WeeklyContestResponse is the REST response type for /api/contest/weekly.
type WeeklyContestResponse struct {
	contest.Period
	Guid     string              `json:"guid"`
	Name     string              `json:"name"`
	Phase    contest.PeriodPhase `json:"phase"`
	WeekOver bool                `json:"week_over"`
}

// DrawPeriod describes one draw cycle.
type DrawPeriod struct {
	Period string         `json:"period"`
	Guid   string         `json:"guid"`
	Window contest.Window `json:"window"`
}

// CryptoPeriod describes the UTC-aligned crypto cycle.
type CryptoPeriod struct {
	WeekKey  string         `json:"week_key"`
	Week     contest.Window `json:"week"`
	DayOpen  time.Time      `json:"day_open"`
	DayClose time.Time      `json:"day_close"`
}

// DrawsResponse is the REST response type for /api/draws.
type DrawsResponse struct {
	Weekly  DrawPeriod   `json:"weekly"`
	Monthly DrawPeriod   `json:"monthly"`
	Crypto  CryptoPeriod `json:"crypto"`
}

// TradingGateResponse is the REST response type for /api/trading-gate.
type TradingGateResponse struct {
	Kind    string    `json:"kind"`
	At      time.Time `json:"at"`
	Allowed bool      `json:"allowed"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
