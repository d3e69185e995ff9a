package router

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"gemini-chat/internal/handlers"
	"gemini-chat/internal/middleware"
	"gemini-chat/internal/web"
	"gemini-chat/internal/websocket"
)

func New(
	sessions *middleware.Sessions,
	chatLimiter *middleware.RateLimiter,
	pageHandler *handlers.PageHandler,
	chatHandler *handlers.ChatHandler,
	wsHub *websocket.Hub,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	static, _ := fs.Sub(web.StaticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	// ──── Chat page (server-rendered) ────
	// The limiter sits in front of the session middleware on chat submits.
	r.With(chatLimiter.Middleware, sessions.Middleware).Post("/chat", pageHandler.Submit)
	r.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)
		r.Get("/", pageHandler.Index)
		r.Post("/chat/reset", pageHandler.Reset)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// ──── Chat Routes ────
		r.With(chatLimiter.Middleware, sessions.Middleware).Post("/chat", chatHandler.SendMessage)
		r.Group(func(r chi.Router) {
			r.Use(sessions.Middleware)
			r.Get("/transcript", chatHandler.GetTranscript)
			r.Delete("/session", chatHandler.ResetSession)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
