// Package api exposes HTTP handlers for the step attribution service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"example.com/stepcause/internal/attribution"
	"example.com/stepcause/internal/auth"
	"example.com/stepcause/internal/causes"
	"example.com/stepcause/internal/domain"
	"example.com/stepcause/internal/integrity"
	"example.com/stepcause/internal/messages"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler coordinates HTTP requests with the attribution, cause and message services.
type Handler struct {
	steps    *attribution.Service
	causes   *causes.Service
	messages *messages.Service
	logger   *zap.Logger
	aiModel  string
}

// NewHandler builds a Handler. aiModel is reported by the AI status endpoint.
func NewHandler(steps *attribution.Service, causeSvc *causes.Service, msgSvc *messages.Service, logger *zap.Logger, aiModel string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{steps: steps, causes: causeSvc, messages: msgSvc, logger: logger, aiModel: aiModel}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/steps", h.recordSteps)
	mux.HandleFunc("/v1/steps/", h.stepQueries)
	mux.HandleFunc("/v1/causes", h.causeCollection)
	mux.HandleFunc("/v1/causes/", h.causeByID)
	mux.HandleFunc("/v1/messages", h.messageCollection)
	mux.HandleFunc("/v1/messages/", h.messageRoutes)
	mux.HandleFunc("/v1/users/profile", h.userProfile)
	mux.HandleFunc("/v1/users/causes", h.userCauses)
	mux.HandleFunc("/v1/ai/check-similar-cause", h.checkSimilarCause)
	mux.HandleFunc("/v1/ai/status", h.aiStatus)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authorize returns the caller's claims when one of scopes is granted. An empty
// scope list only requires a valid token. The caller's user record is provisioned
// on first use.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if len(scopes) > 0 {
		granted := false
		for _, scope := range scopes {
			if claims.HasScope(scope) {
				granted = true
				break
			}
		}
		if !granted {
			writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
			return nil, false
		}
	}

	if _, err := h.causes.EnsureUser(r.Context(), claims.Subject, claims.Email, claims.Name); err != nil {
		h.writeServiceError(w, err)
		return nil, false
	}
	return claims, true
}

// writeServiceError maps domain errors onto problem responses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var rejection *integrity.RejectionError
	switch {
	case errors.As(err, &rejection):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"type":   "batch_rejected",
			"reason": rejection.Reason,
			"detail": rejection.Error(),
		})
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, domain.ErrCauseNotFound):
		writeError(w, http.StatusNotFound, "not_found", "cause not found")
	case errors.Is(err, domain.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, "not_found", "message not found")
	case errors.Is(err, domain.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "forbidden", "not authorized for this resource")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

// pathSegments splits the path below prefix into non-empty segments.
func pathSegments(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
