package api

import (
	"net/http"

	"example.com/stepcause/internal/auth"
	"example.com/stepcause/internal/domain"
)

func (h *Handler) checkSimilarCause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if _, ok := h.authorize(w, r, auth.ScopeCausesWrite); !ok {
		return
	}

	var req CauseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	verdict, err := h.causes.CheckSimilar(r.Context(), domain.ProposedCause{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVerdictView(verdict))
}

func (h *Handler) aiStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	if !h.causes.SimilarityEnabled() {
		writeJSON(w, http.StatusOK, AIStatusResponse{
			Enabled: false,
			Status:  "disabled",
			Message: "AI service disabled (GEMINI_API_KEY not set)",
		})
		return
	}

	model := h.aiModel
	writeJSON(w, http.StatusOK, AIStatusResponse{
		Enabled: true,
		Model:   &model,
		Status:  "ready",
		Message: "AI service is ready",
	})
}
