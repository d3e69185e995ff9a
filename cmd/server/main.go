package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"gemini-chat/internal/config"
	"gemini-chat/internal/database"
	"gemini-chat/internal/handlers"
	"gemini-chat/internal/logging"
	"gemini-chat/internal/middleware"
	"gemini-chat/internal/router"
	"gemini-chat/internal/services"
	"gemini-chat/internal/session"
	"gemini-chat/internal/web"
	"gemini-chat/internal/websocket"
)

func main() {
	logging.Setup(true, "info")
	log.Info().Msg("starting Gemini chat")

	// ──── Step 1: Load Environment Variables ────
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error, refusing to start")
	}
	logging.Setup(cfg.IsDevelopment(), cfg.LogLevel)
	log.Info().Str("env", cfg.Env).Msg("environment variables loaded")

	// ──── Step 2: Initialize Gemini Client ────
	geminiService, err := services.NewGeminiService(context.Background(), cfg.GoogleAPIKey, cfg.GeminiModel, cfg.GeminiConcurrentReqs)
	if err != nil {
		log.Fatal().Err(err).Msg("Gemini client initialization failed")
	}
	defer geminiService.Close()
	log.Info().Str("model", geminiService.ModelName()).Msg("Gemini client initialized")

	// ──── Step 3: Optional Redis fan-out ────
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Redis connection failed")
		}
		defer redisClient.Close()
		log.Info().Msg("Redis connected, websocket updates fan out via pub/sub")
	}

	// ──── Step 4: Sessions ────
	store := session.NewStore(cfg.SessionIdleTimeout, cfg.HistoryLimit)
	store.StartJanitor(time.Minute)
	sessions := middleware.NewSessions(cfg.SessionSecret, store, !cfg.IsDevelopment())
	if cfg.HistoryLimit == 0 {
		log.Info().Dur("idle_timeout", cfg.SessionIdleTimeout).Msg("session store ready (unbounded history)")
	} else {
		log.Info().Dur("idle_timeout", cfg.SessionIdleTimeout).Int("history_limit", cfg.HistoryLimit).Msg("session store ready")
	}

	// ──── Step 5: WebSocket Hub ────
	wsHub := websocket.NewHub(redisClient, sessions, store)

	// ──── Step 6: Services & Handlers ────
	renderer, err := web.NewRenderer()
	if err != nil {
		log.Fatal().Err(err).Msg("template initialization failed")
	}

	chatService := services.NewChatService(geminiService, wsHub)
	pageHandler := handlers.NewPageHandler(chatService, sessions, wsHub, renderer, cfg.PageTitle, cfg.PageHeader, cfg.GeminiModel)
	chatHandler := handlers.NewChatHandler(chatService, sessions, wsHub)

	chatLimiter := middleware.NewRateLimiter(cfg.ChatRateLimit, time.Minute)

	// ──── Step 7: Start HTTP Server ────
	r := router.New(sessions, chatLimiter, pageHandler, chatHandler, wsHub)

	// No WriteTimeout: a turn blocks for as long as the model takes.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("received interrupt signal, shutting down gracefully...")
		store.Stop()
		chatLimiter.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	log.Info().Str("addr", server.Addr).Msgf("ready on http://localhost:%s", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server listen error")
	}
	log.Info().Msg("server shutdown complete")
}
