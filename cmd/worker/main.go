package main

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zeitlabs/payments-hyperpay/internal/audit"
	"github.com/zeitlabs/payments-hyperpay/internal/config"
	"github.com/zeitlabs/payments-hyperpay/internal/obs"
	"github.com/zeitlabs/payments-hyperpay/internal/payment"
	"github.com/zeitlabs/payments-hyperpay/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := obs.NewLogger("json", "info")
		fallback.Fatal().Err(err).Msg("load config")
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	ctx := context.Background()
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database url")
	}
	poolCfg.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	redisConn, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	st := store.New(pool, logger)
	worker := &payment.FulfillmentWorker{
		Store:  st,
		Audit:  &audit.Service{Store: st, Gateway: cfg.GatewaySlug, Logger: logger},
		Logger: logger,
	}

	srv := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: cfg.QueueConcurrency,
		Queues:      map[string]int{cfg.QueueName: 1},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(payment.TaskCartFulfill, worker.HandleCartFulfill)

	logger.Info().
		Str("queue", cfg.QueueName).
		Int("concurrency", cfg.QueueConcurrency).
		Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}
