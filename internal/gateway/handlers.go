package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"marketcal/internal/contest"
	"marketcal/internal/logger"
	"marketcal/internal/markethours"
	"marketcal/internal/metrics"
	"marketcal/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// API serves the calendar, contest and trading-gate endpoints.
type API struct {
	Cal     *markethours.Calendar
	Deriver *contest.Deriver
	Games   *contest.Service
	Hub     *Hub
	Metrics *metrics.Metrics // optional
	Started time.Time
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("ws upgrade failed", "component", "gateway", "error", err)
			return
		}
		a.Hub.HandleWSRequest(conn, r.URL.Query().Get("last_ts"))
	})

	a.handle(mux, "/api/market/status", http.MethodGet, a.marketStatus)
	a.handle(mux, "/api/market/session", http.MethodGet, a.marketSession)
	a.handle(mux, "/api/market/previous", http.MethodGet, a.boundary(true))
	a.handle(mux, "/api/market/next", http.MethodGet, a.boundary(false))
	a.handle(mux, "/api/contest/weekly", http.MethodGet, a.weeklyContest)
	a.handle(mux, "/api/draws", http.MethodGet, a.draws)
	a.handle(mux, "/api/trading-gate", http.MethodGet, a.tradingGate)
	a.handle(mux, "/api/games", "", a.games)
	a.handle(mux, "/api/games/", http.MethodGet, a.gameByGUID)
	a.handle(mux, "/health", http.MethodGet, a.health)
}

// handle wraps h with CORS, OPTIONS preflight, a method check (empty
// method allows any) and instrumentation.
func (a *API) handle(mux *http.ServeMux, route, method string, h http.HandlerFunc) {
	mux.HandleFunc(route, instrument(a.Metrics, route, func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logger.NewTraceID()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(logger.WithTraceID(r.Context(), id))
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if method != "" && r.Method != method {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		h(w, r)
	}))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}

// writeFailure maps domain errors onto status codes.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, contest.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, markethours.ErrConfigurationGap):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		attrs := append([]any{"component", "gateway", "path", r.URL.Path, "error", err}, logger.LogWithTrace(r.Context())...)
		slog.Error("request failed", attrs...)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

// at reads the "at" query parameter, defaulting to now. A timestamp
// without an explicit offset is rejected.
func (a *API) at(r *http.Request) (time.Time, error) {
	s := r.URL.Query().Get("at")
	if s == "" {
		return a.Cal.Now(), nil
	}
	t, err := markethours.ParseInstant(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: at must be RFC 3339 with an offset", contest.ErrInvalidInput)
	}
	return t.In(a.Cal.Location()), nil
}

func (a *API) marketStatus(w http.ResponseWriter, r *http.Request) {
	t, err := a.at(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	st, err := a.Cal.Status(t)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{MarketStatus: st, Summary: st.String()})
}

func (a *API) marketSession(w http.ResponseWriter, r *http.Request) {
	var d markethours.Date
	if s := r.URL.Query().Get("date"); s != "" {
		parsed, err := markethours.ParseDate(s)
		if err != nil {
			writeFailure(w, r, fmt.Errorf("%w: date must be YYYY-MM-DD", contest.ErrInvalidInput))
			return
		}
		d = parsed
	} else {
		d = a.Cal.DateOf(a.Cal.Now())
	}

	resp := SessionResponse{
		Date:       d,
		Weekday:    d.Weekday().String(),
		TradingDay: a.Cal.IsTradingDay(d),
	}
	if name, ok := a.Cal.Rules().HolidayName(d); ok {
		resp.Holiday = name
	}
	if name, ok := a.Cal.Rules().HalfDayName(d); ok {
		resp.HalfDay = name
	}
	if win, ok := a.Cal.Window(d); ok {
		resp.Session = &win
	}
	if win, ok := a.Cal.PricePollingWindow(d); ok {
		resp.PricePolling = &win
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) boundary(previous bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := a.at(r)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		kind := r.URL.Query().Get("boundary")
		if kind == "" {
			kind = "open"
		}

		var fn func(time.Time) (time.Time, error)
		switch {
		case kind == "open" && previous:
			fn = a.Cal.PreviousSessionOpen
		case kind == "close" && previous:
			fn = a.Cal.PreviousSessionClose
		case kind == "open":
			fn = a.Cal.NextSessionOpen
		case kind == "close":
			fn = a.Cal.NextSessionClose
		default:
			writeFailure(w, r, fmt.Errorf("%w: boundary must be open or close", contest.ErrInvalidInput))
			return
		}

		res, err := fn(t)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, BoundaryResponse{
			Boundary: kind,
			From:     t,
			At:       res,
			AtUTC:    markethours.FormatUTCTimestamp(res),
		})
	}
}

func (a *API) weeklyContest(w http.ResponseWriter, r *http.Request) {
	t, err := a.at(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	ignoreIfOver := false
	if s := r.URL.Query().Get("ignore_if_over"); s != "" {
		if ignoreIfOver, err = strconv.ParseBool(s); err != nil {
			writeFailure(w, r, fmt.Errorf("%w: ignore_if_over must be a boolean", contest.ErrInvalidInput))
			return
		}
	}

	p, err := a.Deriver.WeeklyPeriod(t, ignoreIfOver)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	over, err := a.Deriver.IsWeekOver(t)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WeeklyContestResponse{
		Period:   p,
		Guid:     contest.GameGuid(p.Key, contest.GameTypeStock, contest.LengthWeek),
		Name:     contest.ContestName(p),
		Phase:    p.PhaseAt(t),
		WeekOver: over,
	})
}

func (a *API) draws(w http.ResponseWriter, r *http.Request) {
	t, err := a.at(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	d := a.Deriver
	writeJSON(w, http.StatusOK, DrawsResponse{
		Weekly: DrawPeriod{
			Period: d.WeeklyDrawPeriod(t),
			Guid:   d.WeeklyDrawGuid(t),
			Window: d.WeeklyDrawWindow(t),
		},
		Monthly: DrawPeriod{
			Period: d.MonthlyDrawPeriod(t),
			Guid:   d.MonthlyDrawGuid(t),
			Window: d.MonthlyDrawWindow(t),
		},
		Crypto: CryptoPeriod{
			WeekKey:  contest.WeeklyCryptoPeriodKey(t),
			Week:     contest.WeeklyCryptoWindow(t),
			DayOpen:  contest.CryptoDayOpen(t),
			DayClose: contest.CryptoDayClose(t),
		},
	})
}

func (a *API) tradingGate(w http.ResponseWriter, r *http.Request) {
	t, err := a.at(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	kind := r.URL.Query().Get("kind")
	resp := TradingGateResponse{Kind: kind, At: t}
	switch kind {
	case "", "session":
		resp.Kind = "session"
		resp.Allowed = a.Cal.IsDuringSessionHours(t)
	case "price":
		resp.Allowed = a.Cal.IsDuringPricePollingHours(t)
	default:
		writeFailure(w, r, fmt.Errorf("%w: kind must be session or price", contest.ErrInvalidInput))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) games(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req contest.CreateGameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeFailure(w, r, fmt.Errorf("%w: invalid JSON: %v", contest.ErrInvalidInput, err))
			return
		}
		res, err := a.Games.CreateWeeklyStockGame(r.Context(), req)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		if a.Metrics != nil {
			if res.Created {
				a.Metrics.GamesCreated.Inc()
			} else {
				a.Metrics.GamesJoined.Inc()
			}
		}
		code := http.StatusOK
		if res.Created {
			code = http.StatusCreated
		}
		writeJSON(w, code, res)

	case http.MethodGet:
		q := r.URL.Query()
		from := time.Time{}
		if s := q.Get("from"); s != "" {
			t, err := markethours.ParseInstant(s)
			if err != nil {
				writeFailure(w, r, fmt.Errorf("%w: from must be RFC 3339 with an offset", contest.ErrInvalidInput))
				return
			}
			from = t
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		games, err := a.Games.ListGames(r.Context(), from, limit)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		if games == nil {
			games = []model.Game{}
		}
		writeJSON(w, http.StatusOK, games)

	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (a *API) gameByGUID(w http.ResponseWriter, r *http.Request) {
	guid := strings.TrimPrefix(r.URL.Path, "/api/games/")
	if guid == "" || strings.Contains(guid, "/") {
		writeFailure(w, r, fmt.Errorf("%w: game guid required", contest.ErrInvalidInput))
		return
	}
	g, err := a.Games.GetGame(r.Context(), guid)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"rules_version": a.Cal.Rules().Version,
		"ws_clients":    a.Hub.ClientCount(),
		"uptime_sec":    int64(time.Since(a.Started).Seconds()),
		"ts":            time.Now().UTC().Format(time.RFC3339Nano),
	})
}
