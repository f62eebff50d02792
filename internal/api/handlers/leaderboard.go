package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/awebisam/chemezy/internal/api/types"
	"github.com/awebisam/chemezy/internal/leaderboard"
)

// GetLeaderboard handles GET /leaderboard/{category}
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	limit := queryInt(r, "limit", 25)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > 100 {
		limit = 25
	}

	entries, err := h.leaderboard.GetRanking(r.Context(), category, limit, offset)
	if err != nil {
		if errors.Is(err, leaderboard.ErrInvalidCategory) {
			writeError(w, http.StatusUnprocessableEntity, types.ErrorCodeInvalidCategory, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, types.ErrorCodeStorageError, err.Error())
		return
	}

	resp := types.LeaderboardResponse{
		Category: category,
		Entries:  make([]types.LeaderboardEntryResponse, 0, len(entries)),
	}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, types.LeaderboardEntryResponse{
			Rank:   entry.Rank,
			UserID: entry.UserID,
			Score:  entry.Score,
			Awards: entry.Awards,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRank handles GET /leaderboard/{category}/rank/{user_id}
func (h *Handler) GetRank(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil || userID < 1 {
		writeError(w, http.StatusUnprocessableEntity, types.ErrorCodeInvalidRequest, "invalid user id")
		return
	}

	entry, err := h.leaderboard.GetRank(r.Context(), userID, category)
	if err != nil {
		switch {
		case errors.Is(err, leaderboard.ErrInvalidCategory):
			writeError(w, http.StatusUnprocessableEntity, types.ErrorCodeInvalidCategory, err.Error())
		case errors.Is(err, leaderboard.ErrNotRanked):
			writeError(w, http.StatusNotFound, types.ErrorCodeUserNotRanked, "user is not ranked in this category")
		default:
			writeError(w, http.StatusInternalServerError, types.ErrorCodeStorageError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, types.LeaderboardEntryResponse{
		Rank:   entry.Rank,
		UserID: entry.UserID,
		Score:  entry.Score,
		Awards: entry.Awards,
	})
}
