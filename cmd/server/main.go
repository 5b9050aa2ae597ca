// Package main is the entry point for catalyst-bot, a market-catalyst
// surveillance system: it watches news wires and filings, classifies
// and scores items, and dispatches alerts for the ones that clear the
// filter chain.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amenzel91/catalyst-bot/internal/config"
	"github.com/amenzel91/catalyst-bot/internal/di"
	"github.com/amenzel91/catalyst-bot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("starting catalyst-bot")

	container, err := di.Build(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("error during shutdown cleanup")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := container.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start background workers")
	}
	log.Info().Msg("cycle orchestrator, realtime feed, and scheduler started")

	if container.Control != nil {
		go func() {
			if err := container.Control.ListenAndServe(); err != nil {
				log.Error().Err(err).Msg("control server failed")
			}
		}()
	} else {
		log.Warn().Msg("INTERACTIONS_PUBLIC_KEY not set, control surface disabled")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received")
	cancel()

	if container.Control != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := container.Control.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("control server forced to shutdown")
		}
	}

	log.Info().Msg("catalyst-bot stopped")
}
