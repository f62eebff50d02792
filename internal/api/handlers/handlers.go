// Package handlers provides HTTP request handlers.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/awebisam/chemezy/internal/api/types"
	"github.com/awebisam/chemezy/internal/auth"
	"github.com/awebisam/chemezy/internal/awards"
	"github.com/awebisam/chemezy/internal/leaderboard"
	"github.com/awebisam/chemezy/internal/reaction"
	"github.com/awebisam/chemezy/internal/storage"
)

// Handler provides HTTP handlers for the reaction service.
type Handler struct {
	store       storage.Storage
	cache       *reaction.Cache
	ledger      *reaction.Ledger
	engine      *awards.Engine
	dispatcher  *awards.Dispatcher
	leaderboard *leaderboard.Service
}

// New creates a new Handler.
func New(store storage.Storage, cache *reaction.Cache, ledger *reaction.Ledger, engine *awards.Engine, dispatcher *awards.Dispatcher, lb *leaderboard.Service) *Handler {
	return &Handler{
		store:       store,
		cache:       cache,
		ledger:      ledger,
		engine:      engine,
		dispatcher:  dispatcher,
		leaderboard: lb,
	}
}

// identity returns the authenticated caller, or writes a 401.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, types.ErrorCodeUnauthorized, "authentication required")
		return nil, false
	}
	return identity, true
}

// LivenessCheck handles GET /health/live
// Always returns 200 — confirms the process is alive and not deadlocked.
func (h *Handler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{Status: "UP"})
}

// ReadinessCheck handles GET /health/ready
// Returns 200 when storage is reachable, 503 when not.
func (h *Handler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, types.HealthResponse{Status: "DOWN"})
		return
	}
	writeJSON(w, http.StatusOK, types.HealthResponse{Status: "UP"})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{
		ErrorCode: code,
		Message:   message,
	})
}

// decodeBody decodes a JSON request body, writing a 422 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, types.ErrorCodeInvalidRequest, "invalid request body")
		return false
	}
	return true
}
