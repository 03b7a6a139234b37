package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gildedshear/platform/libs/auth"
	"github.com/gildedshear/platform/libs/business"
	"github.com/gildedshear/platform/libs/config"
	"github.com/gildedshear/platform/libs/db"
	"github.com/gildedshear/platform/libs/grpcx"
	"github.com/gildedshear/platform/libs/httpx"
	"github.com/gildedshear/platform/libs/kafkax"
	"github.com/gildedshear/platform/libs/metrics"
	otelx "github.com/gildedshear/platform/libs/otel"
	"github.com/gildedshear/platform/libs/runtime"
	"github.com/gildedshear/platform/migrations"
	"github.com/gildedshear/platform/services/booking-service/internal/adminview"
	"github.com/gildedshear/platform/services/booking-service/internal/booking"
	"github.com/gildedshear/platform/services/booking-service/internal/cache"
	"github.com/gildedshear/platform/services/booking-service/internal/calendar"
	"github.com/gildedshear/platform/services/booking-service/internal/handlers"
	"github.com/gildedshear/platform/services/booking-service/internal/outbox"
	"github.com/gildedshear/platform/services/booking-service/internal/payments"
	"github.com/gildedshear/platform/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLogger(service)
	if err := runtime.LoadDotEnv(); err != nil {
		logger.Warn("dotenv load failed", "err", err)
	}
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		panic(err)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	shop, err := business.Load(config.String("BUSINESS_CONFIG", ""))
	if err != nil {
		logger.Error("business config invalid", "err", err)
		panic(err)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	if config.Bool("MIGRATE_ON_START", false) {
		if err := db.Migrate(dbURL, migrations.FS, -1); err != nil {
			logger.Error("migration failed", "err", err)
			panic(err)
		}
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	rdb, err := cache.Open(ctx, config.String("REDIS_URL", "redis://localhost:6379/0"))
	if err != nil {
		logger.Error("redis connection failed", "err", err)
		panic(err)
	}
	defer func() { _ = rdb.Close() }()

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)
	brokers := config.String("KAFKA_BROKERS", "")

	repo := storage.NewAppointmentRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	changes := cache.NewChangeSignal(rdb, logger)
	monthCache := cache.NewMonthCache(rdb, config.Duration("MONTH_CACHE_TTL", 10*time.Minute), config.String("CACHE_PREFIX", ""))
	cal := calendar.NewService(repo, monthCache, shop, logger, bookingMetrics)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, bookingMetrics, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	var jwks *auth.JWKSClient
	if url := config.String("AUTH_JWKS_URL", ""); url != "" {
		jwks = auth.NewJWKSClient(url, config.Duration("AUTH_JWKS_TTL", time.Hour))
	}
	verifier := &auth.Verifier{
		Secret:               config.String("AUTH_JWT_SECRET", ""),
		JWKS:                 jwks,
		Audience:             config.String("AUTH_AUDIENCE", ""),
		Issuer:               config.String("AUTH_ISSUER", ""),
		RequireVerifiedEmail: config.Bool("AUTH_REQUIRE_VERIFIED_EMAIL", true),
	}
	adminEmails := config.List("ADMIN_EMAILS")
	if len(adminEmails) == 0 {
		logger.Warn("ADMIN_EMAILS is empty; admin routes will reject every caller")
	}

	h := handlers.New(handlers.Deps{
		Business: shop,
		Calendar: cal,
		Store:    repo,
		Writer:   booking.NewWriter(repo, outboxRepo, shop, logger, bookingMetrics),
		Outbox:   outboxRepo,
		Intents:  payments.NewStripeIntents(config.String("STRIPE_SECRET_KEY", "")),
		Admin:    adminview.NewView(repo, changes, shop, logger),
		Tokens:   storage.NewProfileRepository(pool),
		Changes:  changes,
		Verifier: verifier,
		Logger:   logger,
		Metrics:  bookingMetrics,
	}, handlers.Config{
		StripeWebhookSecret:           config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookToleranceSeconds: config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300),
		AdminEmails:                   adminEmails,
		StreamKeepAlive:               config.Duration("ADMIN_STREAM_KEEPALIVE", 25*time.Second),
	})

	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	var limit httpx.Middleware
	switch config.String("RATE_LIMIT_BACKEND", "redis") {
	case "memory":
		limit = httpx.NewRateLimiter(perMinute, time.Minute).Middleware()
	default:
		limit = httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "rl:public", logger,
			config.Bool("RATE_LIMIT_FAIL_OPEN", true)).Middleware()
	}
	public := func(next http.Handler) http.Handler {
		return httpx.Chain(next,
			limit,
			httpx.WithBodyLimit(64<<10),
			httpx.WithTimeout(config.Duration("PUBLIC_REQUEST_TIMEOUT", 10*time.Second)),
		)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	h.Register(mux, public)

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			AllowedHeaders: []string{"Authorization", "Content-Type", httpx.RequestIDHeader, "Idempotency-Key"},
			MaxAge:         10 * time.Minute,
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger)
	go func() {
		if err := grpcx.Serve(ctx, grpcSrv, health, ":"+grpcPort, logger, 10*time.Second); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	runtime.Serve(ctx, srv, logger, 10*time.Second)
}
