package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	mhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/zeitlabs/payments-hyperpay/internal/obs"
)

// Router assembles the HTTP surface of the API process.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.Cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(obs.TracingMiddleware)
	r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(a.Cfg.MetricsNamespace, nil, nil)}.Middleware)
	r.Use(obs.RequestLogger{Logger: a.Logger}.Middleware)

	r.Get("/healthz", a.Health.Live)
	r.Get("/readyz", a.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	rateLimited := mhttp.NewMiddleware(a.RateLimit)

	r.Route("/api/v1/hyperpay", func(r chi.Router) {
		r.Use(rateLimited.Handler)
		r.With(a.Verifier.Middleware).Post("/pay", a.Pay.Handle)
		r.Get("/status", a.Status.Handle)
	})

	// The processor calls the webhook and redirects the shopper to the
	// return page; neither carries our bearer tokens.
	r.Post("/webhooks/hyperpay", a.Webhook.Handle)
	r.Get("/payments/hyperpay/return", a.Return.Handle)

	return r
}
