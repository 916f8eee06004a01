package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/aulalab/maisa/internal/log"
	"github.com/aulalab/maisa/internal/session"
)

// maxChatBodyBytes bounds the request body; user turns are short.
const maxChatBodyBytes = 64 << 10

// Replier produces the assistant reply for one turn of a session.
// Implemented by session.Controller.
type Replier interface {
	Reply(ctx context.Context, sessionKey, userText string) (string, error)
}

// ChatRequest is one turn from the client. SessionID is optional: when
// absent a new session is created and its id returned, and an empty
// Message on a fresh session yields the welcome greeting.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse carries the assistant reply for one turn.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

// ChatHandler handles the conversational endpoint.
type ChatHandler struct {
	sessions Replier
	logger   log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(sessions Replier, logger log.Logger) *ChatHandler {
	return &ChatHandler{sessions: sessions, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reply, err := h.sessions.Reply(r.Context(), sessionID, req.Message)
	if err != nil {
		if errors.Is(err, session.ErrEmptyInput) {
			writeError(w, http.StatusBadRequest, "empty_message", "message is required on an active session")
			return
		}
		h.logger.Error("chat turn failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not process the message")
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{SessionID: sessionID, Reply: reply})
}
