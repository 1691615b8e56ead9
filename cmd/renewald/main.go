/*
main.go - Renewal daemon entry point

PURPOSE:
  Starts the scheduled renewal loop, the periodic integrity scan, and
  the operational HTTP API. Configuration comes from the environment
  (see config/config.go); a .env file in the working directory is
  honored.

STARTUP SEQUENCE:
  1. Load configuration
  2. Build the App (store, aggregator, ledger, services)
  3. Start the renewal scheduler and integrity loop
  4. Serve the HTTP API with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections (15s drain)
  2. Stop the scheduler and wait for the in-flight pass
  3. Close the store connection
  4. Exit

EXAMPLES:
  # In-memory store on the default port
  ./renewald

  # Production store
  STORE=mongo MONGODB_URI=mongodb://db:27017 ./renewald

SEE ALSO:
  - api/server.go: router configuration
  - factory/app.go: dependency wiring
*/
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

	"github.com/uniformhq/entitlement-engine/api"
	"github.com/uniformhq/entitlement-engine/config"
	"github.com/uniformhq/entitlement-engine/factory"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := factory.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}
	log := app.Log

	app.Scheduler.Start(ctx)
	if cfg.IntegrityInterval > 0 {
		app.Checker.StartLoop(ctx, cfg.IntegrityInterval)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      api.NewRouter(app.Handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Str("store", cfg.Store).Msg("renewal daemon listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	app.Scheduler.Stop()
	if err := app.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("store close")
	}
	log.Info().Msg("stopped")
}
