package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/awebisam/chemezy/internal/api/types"
	"github.com/awebisam/chemezy/internal/awards"
	"github.com/awebisam/chemezy/internal/storage"
)

func validateTemplateRequest(req *types.TemplateRequest) string {
	if strings.TrimSpace(req.Name) == "" {
		return "template name is required"
	}
	if !req.Category.Valid() {
		return "invalid category"
	}
	if len(req.Tiers) == 0 {
		return "at least one tier is required"
	}
	for i := 1; i < len(req.Tiers); i++ {
		if req.Tiers[i].Threshold <= req.Tiers[i-1].Threshold {
			return "tier thresholds must ascend"
		}
	}
	return ""
}

// CreateTemplate handles POST /admin/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req types.TemplateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if msg := validateTemplateRequest(&req); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, types.ErrorCodeInvalidRequest, msg)
		return
	}

	tmpl := &storage.AwardTemplate{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Criteria:    req.Criteria,
		Tiers:       req.Tiers,
		Points:      req.Points,
		Active:      true,
		CreatedBy:   identity.UserID,
	}
	if req.Active != nil {
		tmpl.Active = *req.Active
	}

	if err := h.store.CreateTemplate(r.Context(), tmpl); err != nil {
		if errors.Is(err, storage.ErrTemplateExists) {
			writeError(w, http.StatusConflict, types.ErrorCodeTemplateExists, "template name already in use")
			return
		}
		writeError(w, http.StatusInternalServerError, types.ErrorCodeStorageError, err.Error())
		return
	}

	h.leaderboard.Invalidate(tmpl.Category)
	writeJSON(w, http.StatusCreated, templateResponse(tmpl))
}

// UpdateTemplate handles PUT /admin/templates/{id}
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, types.ErrorCodeInvalidRequest, "invalid template id")
		return
	}

	var req types.TemplateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if msg := validateTemplateRequest(&req); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, types.ErrorCodeInvalidRequest, msg)
		return
	}

	existing, err := h.store.GetTemplate(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrTemplateNotFound) {
			writeError(w, http.StatusNotFound, types.ErrorCodeTemplateNotFound, "template not found")
			return
		}
		writeError(w, http.StatusInternalServerError, types.ErrorCodeStorageError, err.Error())
		return
	}

	tmpl := &storage.AwardTemplate{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Criteria:    req.Criteria,
		Tiers:       req.Tiers,
		Points:      req.Points,
		Active:      existing.Active,
		CreatedBy:   existing.CreatedBy,
	}
	if req.Active != nil {
		tmpl.Active = *req.Active
	}

	if err := h.store.UpdateTemplate(r.Context(), tmpl); err != nil {
		switch {
		case errors.Is(err, storage.ErrTemplateNotFound):
			writeError(w, http.StatusNotFound, types.ErrorCodeTemplateNotFound, "template not found")
		case errors.Is(err, storage.ErrTemplateExists):
			writeError(w, http.StatusConflict, types.ErrorCodeTemplateExists, "template name already in use")
		default:
			writeError(w, http.StatusInternalServerError, types.ErrorCodeStorageError, err.Error())
		}
		return
	}

	h.leaderboard.Invalidate(tmpl.Category)
	if existing.Category != tmpl.Category {
		h.leaderboard.Invalidate(existing.Category)
	}
	writeJSON(w, http.StatusOK, templateResponse(tmpl))
}

// DeactivateTemplate handles DELETE /admin/templates/{id}
// Templates are never hard-deleted: existing grants keep their history.
func (h *Handler) DeactivateTemplate(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, types.ErrorCodeInvalidRequest, "invalid template id")
		return
	}

	tmpl, err := h.store.GetTemplate(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrTemplateNotFound) {
			writeError(w, http.StatusNotFound, types.ErrorCodeTemplateNotFound, "template not found")
			return
		}
		writeError(w, http.StatusInternalServerError, types.ErrorCodeStorageError, err.Error())
		return
	}

	if tmpl.Active {
		tmpl.Active = false
		if err := h.store.UpdateTemplate(r.Context(), tmpl); err != nil {
			writeError(w, http.StatusInternalServerError, types.ErrorCodeStorageError, err.Error())
			return
		}
		h.leaderboard.Invalidate(tmpl.Category)
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTemplates handles GET /admin/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	templates, err := h.store.ListTemplates(r.Context(), activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrorCodeStorageError, err.Error())
		return
	}

	resp := types.TemplatesListResponse{Templates: make([]types.TemplateResponse, 0, len(templates))}
	for _, tmpl := range templates {
		resp.Templates = append(resp.Templates, templateResponse(tmpl))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GrantAward handles POST /admin/awards/grant
func (h *Handler) GrantAward(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req types.GrantAwardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID < 1 || req.TemplateID < 1 {
		writeError(w, http.StatusUnprocessableEntity, types.ErrorCodeInvalidRequest, "user_id and template_id are required")
		return
	}

	award, err := h.engine.Grant(r.Context(), identity.UserID, req.UserID, req.TemplateID, req.Tier)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTemplateNotFound):
			writeError(w, http.StatusNotFound, types.ErrorCodeTemplateNotFound, "template not found")
		case errors.Is(err, storage.ErrTemplateDeactivated):
			writeError(w, http.StatusConflict, types.ErrorCodeInvalidRequest, "template is deactivated")
		case errors.Is(err, storage.ErrAwardExists):
			writeError(w, http.StatusConflict, types.ErrorCodeAwardExists, "award already granted")
		default:
			writeError(w, http.StatusUnprocessableEntity, types.ErrorCodeInvalidTier, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"user_id":     award.UserID,
		"template_id": award.TemplateID,
		"tier":        award.Tier,
		"granted_at":  award.GrantedAt.Format(timeFormat),
	})
}

// RevokeAward handles POST /admin/awards/revoke
func (h *Handler) RevokeAward(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req types.RevokeAwardRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.engine.Revoke(r.Context(), identity.UserID, req.UserID, req.TemplateID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTemplateNotFound):
			writeError(w, http.StatusNotFound, types.ErrorCodeTemplateNotFound, "template not found")
		case errors.Is(err, storage.ErrAwardNotFound):
			writeError(w, http.StatusNotFound, types.ErrorCodeAwardNotFound, "award not found")
		default:
			writeError(w, http.StatusInternalServerError, types.ErrorCodeStorageError, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetAwardTier handles POST /admin/awards/tier
func (h *Handler) SetAwardTier(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req types.SetTierRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.engine.SetTier(r.Context(), identity.UserID, req.UserID, req.TemplateID, req.Tier)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTemplateNotFound):
			writeError(w, http.StatusNotFound, types.ErrorCodeTemplateNotFound, "template not found")
		case errors.Is(err, storage.ErrAwardNotFound):
			writeError(w, http.StatusNotFound, types.ErrorCodeAwardNotFound, "award not found")
		default:
			writeError(w, http.StatusUnprocessableEntity, types.ErrorCodeInvalidTier, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeDiscovery handles POST /admin/discoveries/revoke
func (h *Handler) RevokeDiscovery(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req types.RevokeDiscoveryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Effect) == "" {
		writeError(w, http.StatusUnprocessableEntity, types.ErrorCodeInvalidRequest, "effect is required")
		return
	}

	if err := h.ledger.Revoke(r.Context(), req.Effect, identity.UserID, req.Reason); err != nil {
		if errors.Is(err, storage.ErrDiscoveryNotFound) {
			writeError(w, http.StatusNotFound, types.ErrorCodeDiscoveryNotFound, "discovery not found")
			return
		}
		writeError(w, http.StatusInternalServerError, types.ErrorCodeStorageError, err.Error())
		return
	}

	h.leaderboard.Invalidate(storage.CategoryDiscovery)
	w.WriteHeader(http.StatusNoContent)
}

// RecordContribution handles POST /admin/contributions
// Records a verified contribution and queues award evaluation for the
// contributing user.
func (h *Handler) RecordContribution(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}

	var req types.ContributionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID < 1 || strings.TrimSpace(req.Kind) == "" {
		writeError(w, http.StatusUnprocessableEntity, types.ErrorCodeInvalidRequest, "user_id and kind are required")
		return
	}

	record := &storage.ContributionRecord{
		UserID:    req.UserID,
		Kind:      req.Kind,
		Accepted:  req.Accepted,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateContribution(r.Context(), record); err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrorCodeStorageError, err.Error())
		return
	}

	if h.dispatcher != nil {
		h.dispatcher.Enqueue(awards.Event{
			Kind:       awards.EventContribution,
			UserID:     req.UserID,
			OccurredAt: record.CreatedAt,
		})
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":      record.ID,
		"user_id": record.UserID,
	})
}
