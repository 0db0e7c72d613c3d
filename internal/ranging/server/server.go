// Package server exposes a read-only JSON introspection API over the
// ranging core's session state (spec section 10's "operator/debug
// surface"). It is not the "public client API" spec section 1 excludes
// from scope — it is analogous to the teacher's control API, used by
// rangingctl and integration tests, never by a peer device.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/multirange/core/internal/ranging/model"
)

// ErrSessionNotFound indicates GET /sessions/{device} named a device with
// no active session.
var ErrSessionNotFound = errors.New("session not found")

// ErrPanicRecovered indicates a handler panicked and was recovered.
var ErrPanicRecovered = errors.New("panic recovered in http handler")

// SessionSnapshot is a read-only view of one peer's ranging session,
// ported from the shape of bfd.SessionSnapshot/Manager.Sessions for a
// peer-keyed, multi-technology session instead of a single-technology
// one.
type SessionSnapshot struct {
	Peer         model.RangingDevice `json:"peer"`
	State        string              `json:"state"`
	Technologies []string            `json:"technologies"`
}

// Registry is the read-only view of running sessions the API serves.
// cmd/rangingd supplies the concrete implementation backed by its
// session.Kernel registry; tests supply a fake.
type Registry interface {
	// Sessions returns one SessionSnapshot per peer with an active
	// session, in no particular order.
	Sessions() []SessionSnapshot

	// Session returns the snapshot for one peer, and false if that peer
	// has no active session.
	Session(peer model.RangingDevice) (SessionSnapshot, bool)
}

// New builds the introspection API's http.Handler with recovery and
// logging middleware. It does not add h2c; wrap the result with NewH2C to
// serve cleartext HTTP/2.
func New(reg Registry, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "ranging-server"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /sessions", handleSessions(reg))
	mux.HandleFunc("GET /sessions/{device}", handleSession(reg))

	return recoveryMiddleware(logger, loggingMiddleware(logger, mux))
}

// NewH2C wraps handler with h2c.NewHandler so it can be served over
// cleartext HTTP/2, matching the teacher's newGRPCServer.
func NewH2C(handler http.Handler) http.Handler {
	return h2c.NewHandler(handler, &http2.Server{})
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleSessions(reg Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, reg.Sessions())
	}
}

func handleSession(reg Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.PathValue("device")
		id, err := model.ParseRangingDevice(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		snap, ok := reg.Session(id)
		if !ok {
			writeError(w, http.StatusNotFound, ErrSessionNotFound)
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
