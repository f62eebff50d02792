package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/awebisam/chemezy/internal/api/types"
	"github.com/awebisam/chemezy/internal/storage"
)

// RFC 3339 with second precision, matching the stored timestamps.
const timeFormat = time.RFC3339

// GetOwnAwards handles GET /awards
func (h *Handler) GetOwnAwards(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	h.writeUserAwards(w, r, identity.UserID)
}

// GetUserAwards handles GET /users/{user_id}/awards
func (h *Handler) GetUserAwards(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil || userID < 1 {
		writeError(w, http.StatusUnprocessableEntity, types.ErrorCodeInvalidRequest, "invalid user id")
		return
	}
	h.writeUserAwards(w, r, userID)
}

func (h *Handler) writeUserAwards(w http.ResponseWriter, r *http.Request, userID int64) {
	userAwards, err := h.store.ListUserAwards(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrorCodeStorageError, err.Error())
		return
	}

	resp := types.AwardsListResponse{UserID: userID, Awards: make([]types.AwardResponse, 0, len(userAwards))}
	for _, award := range userAwards {
		entry := types.AwardResponse{
			TemplateID: award.TemplateID,
			Tier:       award.Tier,
			GrantedAt:  award.GrantedAt.Format(timeFormat),
			UpgradedAt: award.UpgradedAt.Format(timeFormat),
		}
		// Deactivated or deleted templates still render what we know.
		if tmpl, err := h.store.GetTemplate(r.Context(), award.TemplateID); err == nil {
			entry.TemplateName = tmpl.Name
			entry.Category = tmpl.Category
			entry.Description = tmpl.Description
			entry.Points = tmpl.Points
			if award.Tier >= 1 && award.Tier <= len(tmpl.Tiers) {
				entry.TierName = tmpl.Tiers[award.Tier-1].Name
			}
		}
		resp.Awards = append(resp.Awards, entry)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetAvailableAwards handles GET /awards/available
func (h *Handler) GetAvailableAwards(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	reports, err := h.engine.UserProgress(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrorCodeStorageError, err.Error())
		return
	}

	resp := types.ProgressListResponse{Progress: make([]types.ProgressResponse, 0, len(reports))}
	for _, report := range reports {
		resp.Progress = append(resp.Progress, types.ProgressResponse{
			TemplateID:   report.TemplateID,
			TemplateName: report.TemplateName,
			Category:     report.Category,
			Description:  report.Description,
			Current:      report.Current,
			Target:       report.Target,
			Fraction:     report.Fraction,
			Tier:         report.Tier,
			Completed:    report.Completed,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func templateResponse(tmpl *storage.AwardTemplate) types.TemplateResponse {
	return types.TemplateResponse{
		ID:          tmpl.ID,
		Name:        tmpl.Name,
		Description: tmpl.Description,
		Category:    tmpl.Category,
		Criteria:    tmpl.Criteria,
		Tiers:       tmpl.Tiers,
		Points:      tmpl.Points,
		Active:      tmpl.Active,
		Version:     tmpl.Version,
		CreatedAt:   tmpl.CreatedAt.Format(timeFormat),
		UpdatedAt:   tmpl.UpdatedAt.Format(timeFormat),
	}
}
