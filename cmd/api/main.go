package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shinyyama/paychat-backend/internal/config"
	"github.com/shinyyama/paychat-backend/internal/db"
	"github.com/shinyyama/paychat-backend/internal/logger"
	appmw "github.com/shinyyama/paychat-backend/internal/middleware"
	"github.com/shinyyama/paychat-backend/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fatal(zerolog.New(os.Stderr), "config load", err)
	}
	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "paychat-api",
		Version: cfg.GitSHA,
	})
	if err := cfg.Validate(); err != nil {
		fatal(log, "invalid config", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Connect(cfg)
	if err != nil {
		fatal(log, "db connect", err)
	}
	if err := db.Migrate(conn); err != nil {
		fatal(log, "auto migrate", err)
	}

	verifier, err := appmw.NewVerifier(ctx, cfg)
	if err != nil {
		fatal(log, "auth init", err)
	}

	srv, err := server.New(server.Deps{
		Config:   cfg,
		DB:       conn,
		Logger:   log,
		Verifier: verifier,
	})
	if err != nil {
		fatal(log, "server init", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "server stopped", err)
		}
	}
}

func fatal(log zerolog.Logger, msg string, err error) {
	log.Fatal().Err(err).Msg(msg)
}
