package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/johnjsyoo/sheet-snitch-bot/internal/gateway"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/obs"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/stream"
)

// ReadyProbe reports whether the backing store is reachable. A nil DB means
// the in-memory store, which is always ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP session layer in front of the gateway.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	gateway    *gateway.Service
	feed       *stream.Stream
	sessionTTL time.Duration

	rateBurst  int
	ratePerSec int
}

func New(rp ReadyProbe, version string, gw *gateway.Service, feed *stream.Stream, sessionTTL time.Duration) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		gateway:    gw,
		feed:       feed,
		sessionTTL: sessionTTL,
		rateBurst:  20,
		ratePerSec: 10,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.HandleFunc("/v1/auth", a.handleAuth)
	a.mux.HandleFunc("/v1/lookup", a.handleLookup)
	a.mux.HandleFunc("/v1/events", a.Stream)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "sheet-snitch",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "sheet-snitch",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
		"usage": map[string]string{
			"auth":   "POST /v1/auth {identity, code} -> session token",
			"lookup": "POST /v1/lookup {query} with Authorization: Bearer <token>",
			"events": "GET /v1/events (SSE activity feed, session required)",
		},
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
