package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/burudani/burudani-backend/api/controllers"
	webhookcontrollers "github.com/burudani/burudani-backend/api/controllers/webhooks"
	"github.com/burudani/burudani-backend/api/middleware"
	"github.com/burudani/burudani-backend/internal/auth"
	"github.com/burudani/burudani-backend/pkg/config"
	"github.com/burudani/burudani-backend/pkg/logger"
	pkgredis "github.com/burudani/burudani-backend/pkg/redis"
)

const (
	createPaymentPattern = "/api/v1/payments"
	registerPattern      = "/api/v1/auth/register"
)

// Dependencies are the services the HTTP surface dispatches to. Nil stores
// disable the features that need them (idempotency replay, login throttling).
type Dependencies struct {
	DB               controllers.Pinger
	Redis            controllers.Pinger
	IdempotencyStore pkgredis.IdempotencyStore
	RateLimiter      pkgredis.RateLimiter
	Auth             auth.Service
	Payments         controllers.PaymentsService
	Webhooks         webhookcontrollers.ZenoPayWebhookService
	Metrics          prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	idempotency := middleware.Idempotency(deps.IdempotencyStore, []middleware.IdempotencyRule{
		{Method: http.MethodPost, Pattern: createPaymentPattern, TTL: cfg.Payments.IdempotencyTTL},
		{Method: http.MethodPost, Pattern: registerPattern, TTL: cfg.Payments.IdempotencyTTL},
	}, logg)

	readiness := map[string]controllers.Pinger{}
	if deps.DB != nil {
		readiness["db"] = deps.DB
	}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})

	if cfg.Metrics.Enabled && deps.Metrics != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/zenopay", webhookcontrollers.ZenoPayWebhook(deps.Webhooks, cfg.ZenoPay.WebhookKey(), logg))
	})

	r.With(middleware.AuthRateLimit(loginPolicy, deps.RateLimiter, logg)).
		Post("/api/v1/auth/login", controllers.AuthLogin(deps.Auth, logg))
	r.With(idempotency).
		Post(registerPattern, controllers.AuthRegister(deps.Auth, logg))

	optionalAuth := middleware.OptionalAuth(cfg.JWT, logg)
	r.With(optionalAuth, idempotency).
		Post(createPaymentPattern, controllers.CreatePayment(deps.Payments, logg))
	r.With(optionalAuth).
		Get("/api/v1/payments/{orderId}", controllers.GetPayment(deps.Payments, logg))
	r.With(middleware.Auth(cfg.JWT, logg)).
		Get("/api/v1/payments", controllers.ListPayments(deps.Payments, logg))

	return r
}
