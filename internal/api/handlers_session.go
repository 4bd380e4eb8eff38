package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ryosuke1832/remind/internal/api/respond"
	"github.com/ryosuke1832/remind/internal/api/validate"
	"github.com/ryosuke1832/remind/internal/grounding"
	"github.com/ryosuke1832/remind/internal/services"
)

// SessionHandler drives grounding sessions.
type SessionHandler struct {
	users    *services.UserService
	sessions *grounding.Registry
}

func NewSessionHandler(users *services.UserService, sessions *grounding.Registry) *SessionHandler {
	return &SessionHandler{users: users, sessions: sessions}
}

type sessionView struct {
	grounding.View
	Progress float64 `json:"progress"`
}

func viewOf(s *grounding.Session) sessionView {
	return sessionView{View: s.Current(), Progress: s.Progress()}
}

// CreateSession POST /api/users/{userId}/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if err := validate.UserID(userID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	var req struct {
		AvatarID string `json:"avatar_id,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.WriteBadRequest(w, "Invalid JSON")
			return
		}
	}
	if _, err := h.users.Get(r.Context(), userID); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	s := h.sessions.Create(userID, req.AvatarID)
	respond.WriteJSON(w, http.StatusCreated, viewOf(s))
}

// GetSession GET /api/sessions/{sessionId}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respond.WriteJSON(w, http.StatusOK, viewOf(s))
}

// Answer POST /api/sessions/{sessionId}/answers
func (h *SessionHandler) Answer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := s.Answer(req.Text); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, viewOf(s))
}

// RemoveAnswer DELETE /api/sessions/{sessionId}/answers/{index}
func (h *SessionHandler) RemoveAnswer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	i, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil || !s.RemoveAnswer(i) {
		respond.WriteNotFound(w, "answer not found")
		return
	}
	respond.WriteJSON(w, http.StatusOK, viewOf(s))
}

// ClearAnswers DELETE /api/sessions/{sessionId}/answers
func (h *SessionHandler) ClearAnswers(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	s.ClearStep()
	respond.WriteJSON(w, http.StatusOK, viewOf(s))
}

// Next POST /api/sessions/{sessionId}/next
func (h *SessionHandler) Next(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	s.Next()
	respond.WriteJSON(w, http.StatusOK, viewOf(s))
}

// EndSession DELETE /api/sessions/{sessionId}
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.sessions.Remove(s.ID())
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":       s.ID(),
		"finished": s.Finished(),
		"history":  s.History(),
	})
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*grounding.Session, bool) {
	id := mux.Vars(r)["sessionId"]
	if err := validate.SessionID(id); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return nil, false
	}
	s, ok := h.sessions.Get(id)
	if !ok {
		respond.WriteNotFound(w, "session not found")
		return nil, false
	}
	return s, true
}
