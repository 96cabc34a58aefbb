package api

import (
	"net/http"

	"example.com/stepcause/internal/causes"
)

func (h *Handler) userProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodPut:
	default:
		methodNotAllowed(w)
		return
	}
	claims, ok := h.authorize(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		profile, err := h.causes.Profile(r.Context(), claims.Subject)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toProfileView(profile))
		return
	}

	var req ProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	profile, err := h.causes.UpdateProfile(r.Context(), claims.Subject, causes.ProfileInput{
		Name:    req.Name,
		Picture: req.Picture,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(profile))
}

func (h *Handler) userCauses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	claims, ok := h.authorize(w, r)
	if !ok {
		return
	}

	list, err := h.causes.SupportedBy(r.Context(), claims.Subject)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCauseViews(list))
}
