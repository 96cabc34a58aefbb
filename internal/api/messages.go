package api

import (
	"net/http"
	"strconv"

	"example.com/stepcause/internal/auth"
	"example.com/stepcause/internal/messages"
)

func (h *Handler) messageCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	h.createMessage(w, r)
}

// messageRoutes serves /v1/messages/cause/{id}[/top], /v1/messages/user/{id},
// /v1/messages/{id} and /v1/messages/{id}/like.
func (h *Handler) messageRoutes(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/v1/messages/")
	switch {
	case len(segments) == 2 && segments[0] == "cause" && r.Method == http.MethodGet:
		h.causeMessages(w, r, segments[1])
	case len(segments) == 3 && segments[0] == "cause" && segments[2] == "top" && r.Method == http.MethodGet:
		h.topMessages(w, r, segments[1])
	case len(segments) == 2 && segments[0] == "user" && r.Method == http.MethodGet:
		h.userMessages(w, r, segments[1])
	case len(segments) == 2 && segments[1] == "like" && r.Method == http.MethodPost:
		h.likeMessage(w, r, segments[0])
	case len(segments) == 2 && segments[1] == "like" && r.Method == http.MethodDelete:
		h.unlikeMessage(w, r, segments[0])
	case len(segments) == 1 && r.Method == http.MethodDelete:
		h.deleteMessage(w, r, segments[0])
	case len(segments) == 0:
		writeError(w, http.StatusBadRequest, "invalid_request", "missing message id")
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown route")
	}
}

func (h *Handler) causeMessages(w http.ResponseWriter, r *http.Request, causeID string) {
	list, err := h.messages.ByCause(r.Context(), causeID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageViews(list))
}

func (h *Handler) topMessages(w http.ResponseWriter, r *http.Request, causeID string) {
	limit := messages.DefaultTopLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	list, err := h.messages.Top(r.Context(), causeID, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageViews(list))
}

func (h *Handler) userMessages(w http.ResponseWriter, r *http.Request, userID string) {
	list, err := h.messages.ByUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageViews(list))
}

func (h *Handler) createMessage(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, auth.ScopeCausesWrite)
	if !ok {
		return
	}

	var req MessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, err := h.messages.Create(r.Context(), claims.Subject, messages.CreateInput{
		CauseID: req.CauseID,
		Body:    req.Message,
		Kind:    req.Type,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageView(*msg))
}

func (h *Handler) likeMessage(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := h.authorize(w, r, auth.ScopeCausesWrite)
	if !ok {
		return
	}

	msg, err := h.messages.Like(r.Context(), claims.Subject, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageView(*msg))
}

func (h *Handler) unlikeMessage(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := h.authorize(w, r, auth.ScopeCausesWrite)
	if !ok {
		return
	}

	msg, err := h.messages.Unlike(r.Context(), claims.Subject, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageView(*msg))
}

func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := h.authorize(w, r, auth.ScopeCausesWrite)
	if !ok {
		return
	}

	if err := h.messages.Delete(r.Context(), claims.Subject, id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
