package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/directory/internal/api"
	"example.com/directory/internal/auth"
	"example.com/directory/internal/cache"
	"example.com/directory/internal/config"
	"example.com/directory/internal/domain"
	"example.com/directory/internal/logging"
	"example.com/directory/internal/outbox"
	"example.com/directory/internal/persistence"
	"example.com/directory/internal/persistence/memory"
	"example.com/directory/internal/persistence/postgres"
	"example.com/directory/internal/seed"
	httptransport "example.com/directory/internal/transport/http"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "directory-api"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		stores     domain.Stores
		dispatcher *outbox.Dispatcher
	)

	switch cfg.StorageBackend {
	case config.StorageMemory:
		store := memory.NewStore()
		summary, err := seed.Load(ctx, store, seed.Options{})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to seed in-memory store")
		}
		logger.Info().
			Int("activities", len(summary.ActivityIDs)).
			Int("buildings", len(summary.BuildingIDs)).
			Int("organizations", len(summary.OrganizationIDs)).
			Msg("in-memory store seeded")
		stores = domain.Stores{Activities: store, Hierarchy: store, Buildings: store, Organizations: store}

	case config.StoragePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pool.Close()

		store := postgres.NewStore(pool)
		stores = domain.Stores{Activities: store, Hierarchy: store, Buildings: store, Organizations: store}

		if cfg.OutboxEnabled {
			producer := outbox.NewEventWriter(cfg.KafkaBrokers)
			defer producer.Close()

			registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
			dispatcher = outbox.NewDispatcher(outbox.NewPGStore(pool), producer, registry,
				cfg.OutboxPollInterval, cfg.OutboxBatchSize,
				outbox.WithLogger(logger.With().Str("component", "outbox").Logger()))
			go dispatcher.Start(ctx)
		}

	default:
		logger.Fatal().Str("backend", cfg.StorageBackend).Msg("unknown storage backend")
	}

	var ownership domain.OwnershipCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		client, err := cache.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		ownership = cache.NewRedisOwnership(client, cfg.OwnershipCacheTTL)
	}

	service := domain.NewService(stores,
		domain.WithCache(ownership),
		domain.WithLogger(logger.With().Str("component", "domain").Logger()))

	handler := api.NewHandler(service, api.Options{
		Auth:     auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		APIKey:   cfg.APIKey,
		TokenTTL: cfg.TokenTTL,
		Limits:   persistence.PageLimits{Max: cfg.MaxPageLimit},
		Logger:   logger,
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.Chain(mux,
			logging.Middleware(logger),
			httptransport.CORS(cfg.CORSOrigin),
			authMiddleware.Wrap,
		))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress).Str("storage", cfg.StorageBackend).Msg("directory api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
	logger.Info().Msg("directory api stopped")
}
