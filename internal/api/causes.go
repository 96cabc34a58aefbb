package api

import (
	"net/http"
	"strconv"

	"example.com/stepcause/internal/auth"
	"example.com/stepcause/internal/causes"
)

func (h *Handler) causeCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listCauses(w, r)
	case http.MethodPost:
		h.createCause(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) causeByID(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/v1/causes/")
	if len(segments) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing cause id")
		return
	}

	if len(segments) == 1 {
		id := segments[0]
		switch {
		case id == "most-active" && r.Method == http.MethodGet:
			h.mostActiveCauses(w, r)
		case r.Method == http.MethodGet:
			h.getCause(w, r, id)
		case r.Method == http.MethodPut:
			h.updateCause(w, r, id)
		case r.Method == http.MethodDelete:
			h.deleteCause(w, r, id)
		default:
			methodNotAllowed(w)
		}
		return
	}
	if len(segments) != 2 {
		writeError(w, http.StatusNotFound, "not_found", "unknown route")
		return
	}

	id, action := segments[0], segments[1]
	switch {
	case action == "support" && r.Method == http.MethodPost:
		h.supportCause(w, r, id)
	case action == "unsupport" && r.Method == http.MethodPost:
		h.unsupportCause(w, r, id)
	case action == "distribution" && r.Method == http.MethodPut:
		h.updateDistribution(w, r, id)
	case action == "supporters" && r.Method == http.MethodGet:
		h.causeSupporters(w, r, id)
	case action == "support" || action == "unsupport" || action == "distribution" || action == "supporters":
		methodNotAllowed(w)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown route")
	}
}

func (h *Handler) listCauses(w http.ResponseWriter, r *http.Request) {
	list, err := h.causes.ListActive(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCauseViews(list))
}

func (h *Handler) mostActiveCauses(w http.ResponseWriter, r *http.Request) {
	limit := causes.DefaultMostActiveLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	list, err := h.causes.MostActive(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCauseViews(list))
}

func (h *Handler) getCause(w http.ResponseWriter, r *http.Request, id string) {
	cause, err := h.causes.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCauseView(*cause))
}

func (h *Handler) createCause(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, auth.ScopeCausesWrite)
	if !ok {
		return
	}

	var req CauseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cause, err := h.causes.Create(r.Context(), claims.Subject, causes.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Icon:        req.Icon,
		Color:       req.Color,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCauseView(*cause))
}

func (h *Handler) updateCause(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := h.authorize(w, r, auth.ScopeCausesWrite)
	if !ok {
		return
	}

	var req UpdateCauseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cause, err := h.causes.Update(r.Context(), claims.Subject, id, causes.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Icon:        req.Icon,
		Color:       req.Color,
		IsActive:    req.IsActive,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCauseView(*cause))
}

func (h *Handler) deleteCause(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := h.authorize(w, r, auth.ScopeCausesWrite)
	if !ok {
		return
	}

	if err := h.causes.Delete(r.Context(), claims.Subject, id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) supportCause(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := h.authorize(w, r, auth.ScopeCausesWrite)
	if !ok {
		return
	}

	var req IntervalRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	cause, err := h.causes.Support(r.Context(), claims.Subject, id, req.Interval)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCauseView(*cause))
}

func (h *Handler) unsupportCause(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := h.authorize(w, r, auth.ScopeCausesWrite)
	if !ok {
		return
	}

	cause, err := h.causes.Unsupport(r.Context(), claims.Subject, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCauseView(*cause))
}

func (h *Handler) updateDistribution(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := h.authorize(w, r, auth.ScopeCausesWrite)
	if !ok {
		return
	}

	var req IntervalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Interval < 1 {
		writeError(w, http.StatusBadRequest, "validation_failed", "interval must be >= 1")
		return
	}

	dist, err := h.causes.UpdateDistribution(r.Context(), claims.Subject, id, req.Interval)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DistributionResponse{StepDistribution: toRuleViews(dist)})
}

func (h *Handler) causeSupporters(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	board, err := h.causes.Supporters(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSupportersView(board))
}
