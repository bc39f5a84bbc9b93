package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zeitlabs/payments-hyperpay/internal/audit"
	"github.com/zeitlabs/payments-hyperpay/internal/auth"
	"github.com/zeitlabs/payments-hyperpay/internal/config"
	"github.com/zeitlabs/payments-hyperpay/internal/health"
	"github.com/zeitlabs/payments-hyperpay/internal/hyperpay"
	"github.com/zeitlabs/payments-hyperpay/internal/obs"
	"github.com/zeitlabs/payments-hyperpay/internal/payment"
	"github.com/zeitlabs/payments-hyperpay/internal/resilience"
	"github.com/zeitlabs/payments-hyperpay/internal/store"
)

// App owns every long-lived dependency of the API process.
type App struct {
	Cfg    *config.Config
	Logger zerolog.Logger

	Pool       *pgxpool.Pool
	Redis      *redis.Client
	TaskClient *asynq.Client

	Store   *store.Store
	Audit   *audit.Service
	Gateway *hyperpay.Client

	Pay     *payment.PayHandler
	Webhook *payment.WebhookHandler
	Status  *payment.StatusHandler
	Return  *payment.ReturnHandler
	Health  *health.Handler

	Verifier  *auth.Verifier
	RateLimit *limiter.Limiter
}

// New wires the application from configuration. Migrations run before any
// traffic is accepted.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	if err := runMigrations(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpt)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Warn().Err(err).Msg("redis tracing instrumentation failed")
	}

	redisConn, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url for queue: %w", err)
	}
	taskClient := asynq.NewClient(redisConn)

	st := store.New(pool, logger)
	auditSvc := &audit.Service{Store: st, Gateway: cfg.GatewaySlug, Logger: logger}

	breaker := resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRate, cfg.CircuitOpenFor).
		WithTarget(cfg.GatewaySlug).
		WithLogger(logger)
	gateway := &hyperpay.Client{
		BaseURL: cfg.HyperPayBaseURL,
		Creds: hyperpay.Credentials{
			ClientID:     cfg.HyperPayClientID,
			ClientSecret: cfg.HyperPayClientSecret,
		},
		HTTP: resilience.HTTPClient{
			Client: &http.Client{
				Timeout:   cfg.OutboundTimeout,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
			Breaker:     breaker,
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: cfg.CheckoutMaxAttempts,
			Jitter:      0.2,
			Timeout:     cfg.OutboundTimeout,
			Target:      cfg.GatewaySlug,
			Logger:      &logger,
		},
		Auditor: auditSvc,
		Logger:  logger,
	}

	refs := hyperpay.ReferenceScheme{Prefix: cfg.MerchantRefPrefix, SiteID: cfg.SiteID}
	reconciler := &payment.Reconciler{
		Refs:       refs,
		Classifier: hyperpay.NewClassifier(logger),
		Validator:  hyperpay.Validator{Currency: cfg.Currency},
		Store:      st,
		Audit:      auditSvc,
		Fulfiller: &payment.QueueFulfiller{
			Client: taskClient,
			Queue:  cfg.QueueName,
			Logger: logger,
		},
		Gateway: cfg.GatewaySlug,
		Logger:  logger,
	}

	checkout := &payment.CheckoutService{
		Gateway:       gateway,
		Store:         st,
		Refs:          refs,
		Currency:      cfg.Currency,
		WidgetURL:     cfg.HyperPayWidgetURL,
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        logger,
	}

	rate, err := limiter.NewRateFromFormatted(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit: %w", err)
	}
	limiterStore, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "ratelimit"})
	if err != nil {
		return nil, fmt.Errorf("limiter store: %w", err)
	}

	return &App{
		Cfg:        cfg,
		Logger:     logger,
		Pool:       pool,
		Redis:      rdb,
		TaskClient: taskClient,
		Store:      st,
		Audit:      auditSvc,
		Gateway:    gateway,
		Pay:        &payment.PayHandler{Checkout: checkout, Logger: logger},
		Webhook: &payment.WebhookHandler{
			Reconciler: reconciler,
			Audit:      auditSvc,
			Redis:      rdb,
			ReplayTTL:  cfg.WebhookReplayTTL,
			Logger:     logger,
		},
		Status: &payment.StatusHandler{
			Gateway: gateway,
			Store:   st,
			Recon:   reconciler,
			Audit:   auditSvc,
			Logger:  logger,
		},
		Return: &payment.ReturnHandler{
			StatusPath:  "/api/v1/hyperpay/status",
			MaxAttempts: cfg.ReturnMaxAttempts,
			WaitTime:    cfg.ReturnWaitTime,
			Logger:      logger,
		},
		Health: &health.Handler{DB: pool, Redis: rdb},
		Verifier: &auth.Verifier{
			Secret: []byte(cfg.JWTSecret),
			Issuer: cfg.JWTIssuer,
			Logger: logger,
		},
		RateLimit: limiter.New(limiterStore, rate),
	}, nil
}

// Close releases connections. Safe to call once during shutdown.
func (a *App) Close() {
	if a.TaskClient != nil {
		_ = a.TaskClient.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func runMigrations(databaseURL string) error {
	m, err := migrate.New("file://migrations", databaseURL)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
