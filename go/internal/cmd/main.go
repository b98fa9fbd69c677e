package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mcdev12/tourney-auction/go/internal/auction/config"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.Log.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Close()

	if err := services.Coordinator.Recover(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to recover rounds in progress")
	}

	server := setupServer(cfg, services)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return services.Coordinator.Run(gctx) })
	g.Go(func() error { return services.Relay.Run(gctx) })
	if services.Listener != nil {
		g.Go(func() error { return services.Listener.Start(gctx) })
	}
	if services.Consumer != nil {
		g.Go(func() error { return services.Consumer.Start(gctx) })
	}
	if services.TimerRelay != nil {
		g.Go(func() error { return services.TimerRelay.Start(gctx) })
	}

	g.Go(func() error {
		log.Info().
			Str("addr", server.Addr).
			Str("store", cfg.Store.Driver).
			Str("transport", cfg.Transport).
			Msg("auction server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down auction server")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("auction server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("auction server stopped")
}
