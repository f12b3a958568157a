package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hireloop/chat-relay/internal/config"
	"github.com/hireloop/chat-relay/internal/database"
	"github.com/hireloop/chat-relay/internal/handler"
	"github.com/hireloop/chat-relay/internal/jobs"
	"github.com/hireloop/chat-relay/internal/middleware"
	"github.com/hireloop/chat-relay/internal/redis"
	"github.com/hireloop/chat-relay/internal/registry"
	"github.com/hireloop/chat-relay/internal/repository"
	"github.com/hireloop/chat-relay/internal/service"
	"github.com/hireloop/chat-relay/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	convRepo := repository.NewConversationRepository(db.DB)
	msgRepo := repository.NewMessageRepository(db.DB)
	userRepo := repository.NewUserRepository(db.DB)

	reg := registry.New()

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	convService := service.NewConversationService(convRepo, msgRepo, userRepo)
	msgService := service.NewMessageService(msgRepo, convRepo, userRepo)
	userService := service.NewUserService(userRepo)

	chatHandler := handler.NewChatHandler(reg, broker, convService, msgService, userService)
	streamHandler := handler.NewStreamHandler(reg, broker)

	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, cfg.EventRateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(config.MaxEventBodySize)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"connections": reg.TotalConnections(),
			"clients":     broker.TotalClients(),
			"timestamp":   time.Now().UnixMilli(),
		})
	})

	r.Route("/chat", func(r chi.Router) {
		r.Get("/stream", streamHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.EventRequestTimeout))
			r.Use(bodyLimitMiddleware.Handler)
			r.Use(rateLimitMiddleware.Handler)
			r.Post("/events", chatHandler.HandleEvent)
		})
	})

	retentionJob := jobs.NewRetentionJob(convRepo, cfg.Retention(), config.RetentionJobInterval)
	retentionJob.Start()
	defer retentionJob.Stop()

	// WriteTimeout stays zero so SSE streams are never cut off by the server.
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
