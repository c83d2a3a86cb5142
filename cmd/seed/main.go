package main

import (
	"context"
	"flag"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/directory/internal/config"
	"example.com/directory/internal/logging"
	"example.com/directory/internal/persistence/postgres"
	"example.com/directory/internal/seed"
)

func main() {
	orgs := flag.Int("organizations", 100, "number of organizations to generate")
	seedValue := flag.Int64("seed", 1, "random source seed")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	config.LoadDotEnv()
	cfg := config.Load()
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "directory-seed"})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	summary, err := seed.Load(ctx, postgres.NewStore(pool), seed.Options{
		Organizations: *orgs,
		Rand:          rand.New(rand.NewSource(*seedValue)),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seeding failed")
	}

	logger.Info().
		Int("activities", len(summary.ActivityIDs)).
		Int("buildings", len(summary.BuildingIDs)).
		Int("organizations", len(summary.OrganizationIDs)).
		Msg("database seeded")
}
