package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"aistudio/internal/history"
	"aistudio/internal/http/handlers"
	httpapi "aistudio/internal/http/httpapi"
	"aistudio/internal/imaging"
	"aistudio/internal/infra"
	"aistudio/internal/infra/geoip"
	"aistudio/internal/metrics"
	"aistudio/internal/middleware"
	provider "aistudio/internal/providers/image"
	"aistudio/internal/storage"
	"aistudio/internal/studio"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.HistoryStore).Msg("failed to open history store")
	}
	defer closeStore()

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.GeoIPDBPath).Msg("geoip disabled")
	}
	defer resolver.Close()
	var lookup middleware.CountryLookup
	if resolver != nil {
		lookup = resolver.CountryCode
	}

	collector := metrics.NewCollector("aistudio")

	pre := imaging.New(logger)
	pre.MaxWidth = cfg.ImageMaxWidth
	pre.MaxFileSize = cfg.ImageMaxBytes
	pre.MaxPixels = cfg.ImageMaxPixels

	sim := provider.NewSimulator(
		provider.WithDelayRange(cfg.SimulatorMinDelay, cfg.SimulatorMaxDelay),
		provider.WithFailureRate(cfg.SimulatorFailureRate),
		provider.WithLogger(logger),
	)

	studioCfg := studio.Config{MaxAttempts: cfg.RetryMaxAttempts, BackoffBase: cfg.RetryBackoff}
	registry := studio.NewRegistry(func(clientID string) *studio.Studio {
		cache := history.New(ctx, store, cfg.HistoryKey+":"+clientID, logger)
		return studio.New(sim, cache,
			studio.WithConfig(studioCfg),
			studio.WithLogger(logger.With().Str("client_id", clientID).Logger()),
			studio.WithObserver(collector),
		)
	}, studio.WithSessionTTL(cfg.SessionIdleTTL))

	// Generations outlive the request that starts them but not the process.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	app := handlers.NewApp(runCtx, registry, pre, collector, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   lookup,
	})
	server := infra.NewHTTPServer(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Str("history_store", cfg.HistoryStore).Msg("API listening")
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()

		if n := registry.AbortAll(); n > 0 {
			logger.Info().Int("aborted", n).Msg("aborting in-flight generations")
		}
		err := server.Shutdown(shutdownCtx)
		settled := make(chan struct{})
		go func() {
			app.Wait()
			close(settled)
		}()
		select {
		case <-settled:
		case <-time.After(5 * time.Second):
			cancelRuns()
			<-settled
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("server stopped")
}
