package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"gemini-chat/internal/middleware"
	"gemini-chat/internal/services"
	"gemini-chat/internal/web"
)

// Error codes carried across the post/redirect/get of the form path.
const (
	flashAIError    = "ai"
	flashEmptyInput = "empty"
)

var flashMessages = map[string]string{
	flashAIError:    "Failed to get AI response. Please try again.",
	flashEmptyInput: "Please enter a message.",
}

// PageHandler serves the server-rendered chat page. It works without
// JavaScript: the form posts to Submit which redirects back to Index.
type PageHandler struct {
	chat      turnHandler
	sessions  sessionRenewer
	hub       sessionCloser
	renderer  *web.Renderer
	title     string
	header    string
	modelName string
}

func NewPageHandler(chat turnHandler, sessions sessionRenewer, hub sessionCloser, renderer *web.Renderer, title, header, modelName string) *PageHandler {
	return &PageHandler{
		chat:      chat,
		sessions:  sessions,
		hub:       hub,
		renderer:  renderer,
		title:     title,
		header:    header,
		modelName: modelName,
	}
}

func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		http.Error(w, "No active session", http.StatusUnauthorized)
		return
	}

	page := web.Page{
		Title:        h.title,
		Header:       h.header,
		Model:        h.modelName,
		SessionToken: middleware.GetSessionToken(r.Context()),
		Messages:     h.renderer.Messages(sess.Transcript.All()),
		Error:        flashMessages[r.URL.Query().Get("error")],
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.renderer.RenderPage(w, page); err != nil {
		log.Error().Err(err).Msg("failed to render chat page")
	}
}

func (h *PageHandler) Submit(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		http.Error(w, "No active session", http.StatusUnauthorized)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/?error="+flashEmptyInput, http.StatusSeeOther)
		return
	}

	_, err := h.chat.Handle(r.Context(), sess, r.PostForm.Get("message"))
	switch {
	case err == nil:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, services.ErrEmptyMessage):
		http.Redirect(w, r, "/?error="+flashEmptyInput, http.StatusSeeOther)
	default:
		http.Redirect(w, r, "/?error="+flashAIError, http.StatusSeeOther)
	}
}

func (h *PageHandler) Reset(w http.ResponseWriter, r *http.Request) {
	old := middleware.GetSession(r.Context())
	if _, _, err := h.sessions.Renew(w, r); err != nil {
		log.Error().Err(err).Msg("failed to renew session")
		http.Error(w, "Failed to reset session", http.StatusInternalServerError)
		return
	}
	if old != nil && h.hub != nil {
		h.hub.CloseSession(old.ID)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
