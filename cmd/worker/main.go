package main

import (
	"context"
	"os/signal"
	"syscall"

	"captable-backend/internal/application/settlement"
	"captable-backend/internal/config"
	"captable-backend/internal/infrastructure/database"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required for the settlement worker")
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connect")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis url parse")
	}
	rdb := redis.NewClient(opt)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis connect")
	}

	svc := &settlement.Service{
		DB: db,
		Provider: &settlement.StripeProvider{
			SecretKey:           cfg.StripeSecretKey,
			DisbursementAccount: cfg.StripeDisbursementAcct,
		},
		MaxRetries:      cfg.SettlementMaxRetries,
		ProviderTimeout: cfg.ProviderTimeout,
	}
	worker := &settlement.Worker{
		Service:     svc,
		Rdb:         rdb,
		Interval:    cfg.SettlementInterval,
		Concurrency: cfg.SettlementConcurrency,
	}

	log.Info().
		Dur("interval", worker.Interval).
		Int("concurrency", worker.Concurrency).
		Msg("settlement worker starting")

	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("settlement worker stopped")
	}
	log.Info().Msg("settlement worker shut down")
}
