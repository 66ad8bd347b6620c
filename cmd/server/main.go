package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harborchat/harbor/internal/auth"
	"github.com/harborchat/harbor/internal/blob"
	"github.com/harborchat/harbor/internal/chat"
	"github.com/harborchat/harbor/internal/config"
	"github.com/harborchat/harbor/internal/httpapi"
	"github.com/harborchat/harbor/internal/logging"
	"github.com/harborchat/harbor/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components and manages the server lifecycle. Keeping
// the logic out of main ensures deferred cleanup executes on every exit
// path and keeps the wiring testable.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.IsDevelopment())

	db, err := store.Open(cfg.BadgerFilepath, log)
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info().Msg("closing BadgerDB")
		_ = db.Close()
	}()

	blobs, err := blob.NewStore(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("upload directory setup failed: %w", err)
	}

	hub := chat.NewHub(log, chat.Config{
		PingInterval:   cfg.PingInterval,
		PongTimeout:    cfg.PongTimeout,
		SendBufferSize: cfg.SendBufferSize,
		MaxMessageSize: cfg.MaxMessageSize,
		RateLimit: chat.RateLimitConfig{
			Burst:          cfg.RateLimitBurst,
			RefillInterval: cfg.RateLimitRefillInterval,
		},
	}, db, blobs)
	go hub.Run()

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.AuthTokenDuration)
	api := httpapi.NewServer(log, tokens, db, db, hub, blobs.Dir(), cfg.Origins())

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting Harbor server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down gracefully")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown")
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("hub shutdown")
	}

	log.Info().Msg("program stopped cleanly")
	return nil
}
