package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"gemini-chat/internal/middleware"
	"gemini-chat/internal/models"
	"gemini-chat/internal/session"
)

type turnHandler interface {
	Handle(ctx context.Context, sess *session.Session, text string) (models.Turn, error)
}

type sessionRenewer interface {
	Renew(w http.ResponseWriter, r *http.Request) (*session.Session, context.Context, error)
}

type sessionCloser interface {
	CloseSession(sessionID uuid.UUID)
}

type ChatHandler struct {
	chat     turnHandler
	sessions sessionRenewer
	hub      sessionCloser
}

func NewChatHandler(chat turnHandler, sessions sessionRenewer, hub sessionCloser) *ChatHandler {
	return &ChatHandler{chat: chat, sessions: sessions, hub: hub}
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "No active session", r))
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	turn, err := h.chat.Handle(r.Context(), sess, req.Message)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ChatResponse{
		Reply:      turn.Content,
		Transcript: sess.Transcript.All(),
	})
}

func (h *ChatHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "No active session", r))
		return
	}

	writeJSON(w, http.StatusOK, models.TranscriptResponse{
		SessionID: sess.ID,
		Turns:     sess.Transcript.All(),
	})
}

// ResetSession ends the current session and starts an empty one.
func (h *ChatHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	old := middleware.GetSession(r.Context())

	sess, _, err := h.sessions.Renew(w, r)
	if err != nil {
		log.Error().Err(err).Msg("failed to renew session")
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to reset session", r))
		return
	}
	if old != nil && h.hub != nil {
		h.hub.CloseSession(old.ID)
	}

	writeJSON(w, http.StatusOK, models.TranscriptResponse{
		SessionID: sess.ID,
		Turns:     sess.Transcript.All(),
	})
}
