package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-satstore/internal/btcpay"
	"github.com/noah-isme/backend-satstore/internal/config"
	"github.com/noah-isme/backend-satstore/internal/download"
	"github.com/noah-isme/backend-satstore/internal/health"
	"github.com/noah-isme/backend-satstore/internal/obs"
	"github.com/noah-isme/backend-satstore/internal/payment"
	"github.com/noah-isme/backend-satstore/internal/ratelimit"
	"github.com/noah-isme/backend-satstore/internal/resilience"
	"github.com/noah-isme/backend-satstore/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "satstore")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "satstore-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	btcpayConfigured := cfg.BTCPayURL != "" && cfg.BTCPayAPIKey != "" && cfg.BTCPayStoreID != ""
	if !btcpayConfigured {
		logger.Warn().Msg("btcpay credentials not set; invoice creation will fail until configured")
	}
	if cfg.DownloadTokenSecret == "" {
		logger.Warn().Msg("DOWNLOAD_TOKEN_SECRET not set; downloads will fail until configured")
	}
	if cfg.BTCPayWebhookSecret == "" {
		logger.Warn().Msg("BTCPAY_WEBHOOK_SECRET not set; webhook deliveries will be rejected")
	}

	btcpayClient := &btcpay.Client{
		BaseURL: cfg.BTCPayURL,
		APIKey:  cfg.BTCPayAPIKey,
		StoreID: cfg.BTCPayStoreID,
		HTTP: resilience.HTTPClient{
			Client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Timeout: cfg.PaymentRequestTimeout,
		},
	}

	tokens := download.Issuer{
		Secret: cfg.DownloadTokenSecret,
		TTL:    cfg.TokenExpiry,
	}

	paymentHandler := &payment.Handler{
		Client:   btcpayClient,
		Validate: validator.New(),
		Logger:   logger,
	}
	webhookHandler := payment.Webhook{
		Secret: cfg.BTCPayWebhookSecret,
		Tokens: tokens,
		Logger: logger,
	}
	downloadHandler := &download.Handler{
		Issuer:     tokens,
		UploadPath: cfg.UploadPath,
		Logger:     logger,
	}

	paymentLimiter, err := ratelimit.New(cfg.PaymentRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Str("rate", cfg.PaymentRateLimit).Msg("parse rate limit")
	}
	paymentLimiter.OnError = func(err error) {
		logger.Error().Err(err).Msg("rate limiter store")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	bodyLimit := security.BodyLimit{Max: cfg.MaxBodyBytes}
	secHeaders := security.Headers{
		Enable:                envBool("SECURE_HEADERS", true),
		EnableHSTS:            envBool("SECURE_HSTS", false),
		HSTSMaxAge:            envInt("SECURE_HSTS_MAX_AGE", 31536000),
		HSTSIncludeSubdomains: envBool("SECURE_HSTS_INCLUDE_SUBDOMAINS", false),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(secHeaders.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		UploadPath:       cfg.UploadPath,
		BTCPayConfigured: btcpayConfigured,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api", func(api chi.Router) {
		api.With(bodyLimit.Middleware, paymentLimiter.Middleware).
			Post("/payments/btcpay", paymentHandler.CreateInvoice)
		api.With(bodyLimit.Middleware).
			Post("/webhooks/btcpay", webhookHandler.Handle)
		api.Get("/download/{token}", downloadHandler.Get)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
