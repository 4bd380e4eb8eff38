package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/ryosuke1832/remind/internal/api/respond"
	"github.com/ryosuke1832/remind/internal/api/validate"
	"github.com/ryosuke1832/remind/internal/model"
	"github.com/ryosuke1832/remind/internal/services"
	"github.com/ryosuke1832/remind/internal/upload"
)

// AvatarHandler is a thin HTTP transport over AvatarService.
type AvatarHandler struct {
	svc *services.AvatarService
}

func NewAvatarHandler(svc *services.AvatarService) *AvatarHandler { return &AvatarHandler{svc: svc} }

type inviteResponse struct {
	Avatar    *model.Avatar `json:"avatar"`
	InviteURL string        `json:"invite_url"`
}

// CreateInvite POST /api/users/{userId}/avatars
func (h *AvatarHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if err := validate.UserID(userID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	var req services.InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	a, err := h.svc.CreateInvite(r.Context(), userID, req)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, inviteResponse{Avatar: a, InviteURL: a.CreateURL})
}

// ListAvatars GET /api/users/{userId}/avatars
func (h *AvatarHandler) ListAvatars(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if err := validate.UserID(userID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	snap, err := h.svc.Snapshot(r.Context(), userID)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"avatars": snap.Avatars,
		"count":   len(snap.Avatars),
		"default": snap.Default(),
		"version": snap.Version,
	})
}

// StreamAvatars GET /api/users/{userId}/avatars/stream
// Each mirror snapshot is sent as one server-sent event.
func (h *AvatarHandler) StreamAvatars(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if err := validate.UserID(userID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respond.WriteInternalError(w, "streaming unsupported")
		return
	}
	ch, stop, err := h.svc.Watch(r.Context(), userID)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				log.Error().Err(err).Str("user_id", userID).Msg("encode snapshot")
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", snap.Version, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// SetDefault PUT /api/users/{userId}/avatars/{avatarId}/default
func (h *AvatarHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !h.ownerAndAvatar(w, vars) {
		return
	}
	if err := h.svc.SetDefault(r.Context(), vars["userId"], vars["avatarId"]); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveAvatar PUT /api/users/{userId}/avatars/{avatarId}
func (h *AvatarHandler) SaveAvatar(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !h.ownerAndAvatar(w, vars) {
		return
	}
	var a model.Avatar
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.MaxLen("theme", &a.Theme, 64); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	saved, err := h.svc.Save(r.Context(), vars["userId"], vars["avatarId"], a)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, saved)
}

// DeleteAvatar DELETE /api/users/{userId}/avatars/{avatarId}
func (h *AvatarHandler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !h.ownerAndAvatar(w, vars) {
		return
	}
	if err := h.svc.Delete(r.Context(), vars["userId"], vars["avatarId"]); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAvatar GET /api/avatars/{avatarId}
func (h *AvatarHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	avatarID := mux.Vars(r)["avatarId"]
	if err := validate.AvatarID(avatarID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	a, err := h.svc.Get(r.Context(), avatarID)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, a)
}

// UpdateAvatar PATCH /api/avatars/{avatarId}
func (h *AvatarHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	avatarID := mux.Vars(r)["avatarId"]
	if err := validate.AvatarID(avatarID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	var p model.AvatarPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.MaxLen("theme", p.Theme, 64); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	a, err := h.svc.Update(r.Context(), avatarID, p)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, a)
}

// VerifyAvatar POST /api/avatars/{avatarId}/verify
func (h *AvatarHandler) VerifyAvatar(w http.ResponseWriter, r *http.Request) {
	avatarID := mux.Vars(r)["avatarId"]
	if err := validate.AvatarID(avatarID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	checks, err := h.svc.Verify(r.Context(), avatarID)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"checks": checks,
		"ok":     upload.AllOK(checks),
	})
}

// ValidateName POST /api/validate/avatar-name
func (h *AvatarHandler) ValidateName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"user_id"`
		Name        string `json:"name"`
		ExcludingID string `json:"excluding_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.UserID(req.UserID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	res, err := h.svc.ValidateName(r.Context(), req.UserID, req.Name, req.ExcludingID)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

func (h *AvatarHandler) ownerAndAvatar(w http.ResponseWriter, vars map[string]string) bool {
	if err := validate.UserID(vars["userId"]); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return false
	}
	if err := validate.AvatarID(vars["avatarId"]); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}
