package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"forecast-engine/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// LedgerView is the read side of the prediction ledger.
type LedgerView interface {
	Stats(assetID string) model.LedgerStats
	Entries(assetID string) []model.LedgerEntry
}

// API serves the REST and WebSocket routes.
type API struct {
	hub     *Hub
	ledger  LedgerView
	journal model.ForecastJournal // nil when the journal is disabled
	log     *slog.Logger
}

// NewAPI wires the routes to their backing components. journal may be nil.
func NewAPI(hub *Hub, ledger LedgerView, journal model.ForecastJournal, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{hub: hub, ledger: ledger, journal: journal, log: log}
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// Handler returns a mux with every route registered.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes registers all HTTP routes on the provided mux.
//
//	GET /ws                       live forecast feed (?last_ts= for initial state)
//	GET /api/forecasts/latest     latest forecast per asset (?asset=)
//	GET /api/forecasts/history    journaled forecasts, newest first (?asset=&limit=)
//	GET /api/forecasts/missed     replay envelopes (?asset=&from=&to=)
//	GET /api/ledger/stats         hit-rate and error per horizon (?asset=)
//	GET /api/ledger/entries       retained ledger entries (?asset=)
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			a.log.Warn("[gateway] ws upgrade failed", slog.String("error", err.Error()))
			return
		}
		conn.EnableWriteCompression(true)
		a.hub.Register(conn, r.URL.Query().Get("last_ts"))
	})

	mux.HandleFunc("/api/forecasts/latest", a.rest(func(r *http.Request) (any, int) {
		return a.hub.Latest(r.URL.Query().Get("asset")), http.StatusOK
	}))

	mux.HandleFunc("/api/forecasts/history", a.rest(func(r *http.Request) (any, int) {
		if a.journal == nil {
			return errorBody("forecast journal disabled"), http.StatusNotFound
		}
		limit := 100
		if s := r.URL.Query().Get("limit"); s != "" {
			if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 1000 {
				limit = l
			}
		}
		rows, err := a.journal.RecentForecasts(r.Context(), r.URL.Query().Get("asset"), limit)
		if err != nil {
			a.log.Error("[gateway] journal query failed", slog.String("error", err.Error()))
			return errorBody("journal query failed"), http.StatusInternalServerError
		}
		if rows == nil {
			rows = []model.FlatForecast{}
		}
		return rows, http.StatusOK
	}))

	mux.HandleFunc("/api/forecasts/missed", a.rest(func(r *http.Request) (any, int) {
		q := r.URL.Query()
		asset := q.Get("asset")
		from, errFrom := strconv.ParseInt(q.Get("from"), 10, 64)
		to, errTo := strconv.ParseInt(q.Get("to"), 10, 64)
		if asset == "" || errFrom != nil {
			return errorBody("asset and from are required"), http.StatusBadRequest
		}
		if errTo != nil {
			to = a.hub.AssetSeq(asset)
		}
		envs := a.hub.Replay(asset, from, to)
		out := make([]json.RawMessage, len(envs))
		for i, e := range envs {
			out[i] = e
		}
		return out, http.StatusOK
	}))

	mux.HandleFunc("/api/ledger/stats", a.rest(func(r *http.Request) (any, int) {
		return a.ledger.Stats(r.URL.Query().Get("asset")), http.StatusOK
	}))

	mux.HandleFunc("/api/ledger/entries", a.rest(func(r *http.Request) (any, int) {
		entries := a.ledger.Entries(r.URL.Query().Get("asset"))
		if entries == nil {
			entries = []model.LedgerEntry{}
		}
		return entries, http.StatusOK
	}))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// rest adapts a GET handler returning (body, status) to http.HandlerFunc.
func (a *API) rest(fn func(r *http.Request) (any, int)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET, OPTIONS")
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}
		body, status := fn(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			a.log.Debug("[gateway] write response failed", slog.String("error", err.Error()))
		}
	}
}

// Server runs the gateway HTTP server.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("gateway listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("gateway server error", slog.String("error", err.Error()))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
