package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/edustack-labs/edustack/internal/chat"
	"github.com/edustack-labs/edustack/internal/llm"
)

const maxChatBodyBytes = 1 << 20

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	// Reject blank input here so no provider call is ever made for it.
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = chat.DefaultSessionID
	}

	reply, err := s.chat.Exchange(r.Context(), sessionID, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}
		var upstream *llm.UpstreamError
		if errors.As(err, &upstream) {
			// Surface the failure class only; raw provider detail stays in logs.
			s.log.Warn("chat upstream failure", "session_id", sessionID, "kind", upstream.Kind.String(), "error", err)
			writeError(w, http.StatusBadGateway, "model request failed: "+upstream.Kind.String())
			return
		}
		s.log.Error("chat exchange failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: reply, SessionID: sessionID})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	sessions, err := s.arch.ListSessions(r.Context(), limit)
	if err != nil {
		s.log.Error("list sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	sessionID, tail, hasTail := strings.Cut(rest, "/")
	if sessionID == "" || (hasTail && tail != "messages") {
		http.NotFound(w, r)
		return
	}

	msgs, err := s.arch.Messages(r.Context(), sessionID)
	if err != nil {
		s.log.Error("list messages failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "messages": msgs})
}
