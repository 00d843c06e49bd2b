package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/votewatch/realtime/internal/models"
	"github.com/votewatch/realtime/internal/repositories"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type notifyRequest struct {
	UserID  int64           `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

// handleNotify pushes an arbitrary JSON payload to one user's connection.
// delivered=false is a normal outcome, not an error: the user is offline or
// their send buffer is congested, and the caller decides what to do about it.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if req.UserID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "userId is required"})
		return
	}
	if len(req.Payload) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "payload is required"})
		return
	}

	delivered := s.hub.SendToUser(req.UserID, req.Payload)
	writeJSON(w, http.StatusOK, map[string]any{"delivered": delivered})
}

type presenceEntry struct {
	UserID   int64                 `json:"userId"`
	Status   models.PresenceStatus `json:"status"`
	LastSeen int64                 `json:"lastSeen,omitempty"`
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	states := s.hub.PresenceSnapshot()
	entries := make([]presenceEntry, 0, len(states))
	for _, st := range states {
		e := presenceEntry{UserID: st.UserID, Status: st.Status}
		if !st.LastSeen.IsZero() {
			e.LastSeen = st.LastSeen.UnixMilli()
		}
		entries = append(entries, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": entries})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	a, err := parseID(r.URL.Query().Get("a"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "a must be a positive user id"})
		return
	}
	b, err := parseID(r.URL.Query().Get("b"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "b must be a positive user id"})
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a positive integer"})
			return
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
	}

	msgs, err := s.messages.ListBetween(r.Context(), a, b, limit)
	if err != nil {
		s.logger.Error("message history query failed", "a", a, "b", b, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []*models.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid user id"})
		return
	}

	user, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "user not found"})
			return
		}
		s.logger.Error("user lookup failed", "userId", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to load user"})
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("id must be positive")
	}
	return id, nil
}
