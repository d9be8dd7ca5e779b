package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kosss26/storybot/internal/config"
	"github.com/kosss26/storybot/internal/handlers"
	"github.com/kosss26/storybot/internal/logger"
	"github.com/kosss26/storybot/internal/middleware"
	"github.com/kosss26/storybot/internal/storage"
	"github.com/kosss26/storybot/internal/stories"
	"github.com/kosss26/storybot/pkg/engine"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg)

	log.Info("Starting Storybot API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"stories_dir", cfg.StoriesDir,
		"debug", cfg.Debug)

	store := storage.NewRedisStore(cfg.RedisAddr, log)
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()

	if err := store.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage connection established successfully")

	storyStore := stories.NewStore(cfg.StoriesDir, log)
	if err := storyStore.Load(); err != nil {
		log.Error("Failed to load stories", "error", err)
		os.Exit(1)
	}
	log.Info("Stories loaded", "count", storyStore.Count())

	var opts []engine.Option
	if cfg.Debug {
		opts = append(opts, engine.WithDebug())
	}
	interpreter := engine.New(storyStore, store, log, opts...)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(log, store, storyStore)
	mux.Handle("/health", healthHandler)

	playHandler := handlers.NewPlayHandler(log, interpreter, store)
	mux.Handle("/v1/play/", playHandler)

	storiesHandler := handlers.NewStoriesHandler(log, storyStore, interpreter, cfg.AdminTokens)
	mux.Handle("/v1/stories", storiesHandler)
	mux.Handle("/v1/stories/", storiesHandler)

	runsHandler := handlers.NewRunsHandler(log, store, cfg.AdminTokens)
	mux.Handle("/v1/runs", runsHandler)
	mux.Handle("/v1/runs/", runsHandler)

	adminHandler := handlers.NewAdminStoriesHandler(log, storyStore, cfg.AdminTokens)
	mux.Handle("/v1/admin/stories", adminHandler)
	mux.Handle("/v1/admin/stories/", adminHandler)

	handler := middleware.RequestLogger(log, mux)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}
