package api

import (
	"net/http"
	"strconv"

	"example.com/stepcause/internal/attribution"
	"example.com/stepcause/internal/auth"
	"example.com/stepcause/internal/persistence"
)

func (h *Handler) recordSteps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	claims, ok := h.authorize(w, r, auth.ScopeStepsWrite)
	if !ok {
		return
	}

	var req RecordStepsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(h.steps.MaxSteps()); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	recording, err := h.steps.RecordSteps(r.Context(), claims.Subject, req.Submission())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordStepsResponse(recording))
}

func (h *Handler) stepQueries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	segments := pathSegments(r.URL.Path, "/v1/steps/")
	switch {
	case len(segments) == 1 && segments[0] == "history":
		h.stepHistory(w, r)
	case len(segments) == 1 && segments[0] == "stats":
		h.userStats(w, r)
	case len(segments) == 2 && segments[0] == "daily":
		h.dailySteps(w, r, segments[1])
	case len(segments) == 2 && segments[0] == "cause":
		h.causeSteps(w, r, segments[1])
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown route")
	}
}

func (h *Handler) stepHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, auth.ScopeStepsRead, auth.ScopeStepsWrite)
	if !ok {
		return
	}

	limit := attribution.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	records, next, err := h.steps.History(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StepHistoryResponse{
		Items:      toStepRecordViews(records),
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) userStats(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, auth.ScopeStepsRead, auth.ScopeStepsWrite)
	if !ok {
		return
	}

	stats, err := h.steps.UserStats(r.Context(), claims.Subject)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserStatsView(stats))
}

func (h *Handler) dailySteps(w http.ResponseWriter, r *http.Request, date string) {
	claims, ok := h.authorize(w, r, auth.ScopeStepsRead, auth.ScopeStepsWrite)
	if !ok {
		return
	}

	daily, err := h.steps.Daily(r.Context(), claims.Subject, date)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DailyStepsView{
		Date:       daily.Date,
		TotalSteps: daily.TotalSteps,
		Records:    toStepRecordViews(daily.Records),
	})
}

func (h *Handler) causeSteps(w http.ResponseWriter, r *http.Request, causeID string) {
	claims, ok := h.authorize(w, r, auth.ScopeStepsRead, auth.ScopeStepsWrite)
	if !ok {
		return
	}

	stats, err := h.steps.CauseStats(r.Context(), claims.Subject, causeID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CauseStepsView{
		TotalSteps: stats.TotalSteps,
		Records:    stats.Records,
		LastUpdate: stats.LastUpdate,
	})
}
