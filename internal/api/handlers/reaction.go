package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/awebisam/chemezy/internal/api/types"
	"github.com/awebisam/chemezy/internal/reaction"
)

// ResolveReaction handles POST /reactions
func (h *Handler) ResolveReaction(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req types.ReactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.cache.Resolve(r.Context(), identity.UserID, req.Reactants, req.Environment, req.CatalystID)
	if err != nil {
		switch {
		case errors.Is(err, reaction.ErrNoReactants):
			writeError(w, http.StatusUnprocessableEntity, types.ErrorCodeNoReactants, "at least one reactant is required")
		case errors.Is(err, reaction.ErrUpstream):
			writeError(w, http.StatusServiceUnavailable, types.ErrorCodeUpstreamUnavailable, "synthesis temporarily unavailable, retry the request")
		default:
			writeError(w, http.StatusInternalServerError, types.ErrorCodeInternalServerError, err.Error())
		}
		return
	}

	outcome := result.Outcome
	writeJSON(w, http.StatusOK, types.ReactionResponse{
		RequestID:    result.RequestID,
		Products:     outcome.Products,
		Effects:      outcome.Effects,
		StateChange:  outcome.StateChange,
		Explanation:  outcome.Explanation,
		IsWorldFirst: result.WorldFirst,
		NewEffects:   result.NewEffects,
	})
}

// ListDiscoveries handles GET /discoveries
func (h *Handler) ListDiscoveries(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	records, err := h.ledger.Recent(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrorCodeStorageError, err.Error())
		return
	}

	resp := types.DiscoveriesListResponse{Discoveries: make([]types.DiscoveryResponse, 0, len(records))}
	for _, record := range records {
		resp.Discoveries = append(resp.Discoveries, types.DiscoveryResponse{
			Effect:       record.Effect,
			UserID:       record.UserID,
			DiscoveredAt: record.DiscoveredAt.Format(timeFormat),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
