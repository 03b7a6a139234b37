package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gildedshear/platform/libs/business"
	"github.com/gildedshear/platform/libs/config"
	"github.com/gildedshear/platform/libs/db"
	"github.com/gildedshear/platform/libs/httpx"
	"github.com/gildedshear/platform/libs/kafkax"
	"github.com/gildedshear/platform/libs/metrics"
	otelx "github.com/gildedshear/platform/libs/otel"
	"github.com/gildedshear/platform/libs/runtime"
	"github.com/gildedshear/platform/services/notification-service/internal/consumer"
	"github.com/gildedshear/platform/services/notification-service/internal/dispatch"
	"github.com/gildedshear/platform/services/notification-service/internal/inbox"
	"github.com/gildedshear/platform/services/notification-service/internal/push"
	"github.com/gildedshear/platform/services/notification-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	logger := runtime.NewLogger(service)
	if err := runtime.LoadDotEnv(); err != nil {
		logger.Warn("dotenv load failed", "err", err)
	}
	port, err := config.Port("PORT", "8085")
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
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var sender push.Sender
	switch provider := strings.ToLower(config.String("PUSH_PROVIDER", "noop")); provider {
	case "fcm":
		fcmSender, err := push.NewFCMSender(ctx, push.FCMConfig{
			ProjectID:       config.String("FCM_PROJECT_ID", ""),
			CredentialsFile: config.String("GOOGLE_APPLICATION_CREDENTIALS", ""),
		})
		if err != nil {
			logger.Error("fcm sender init failed", "err", err)
			panic(err)
		}
		sender = fcmSender
	case "noop":
		sender = push.NewNoopSender(logger)
	default:
		logger.Warn("unknown push provider; using noop", "provider", provider)
		sender = push.NewNoopSender(logger)
	}

	dispatcher := dispatch.New(
		storage.NewTokenRepository(pool),
		sender,
		shop,
		logger,
		metrics.NewPushMetrics(prometheus.DefaultRegisterer),
		config.String("ADMIN_DASHBOARD_URL", ""),
	)

	brokers := config.String("KAFKA_BROKERS", "")
	eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "booking.appointment.created.v1"),
	}, func(ctx context.Context, msg kafka.Message) error {
		return dispatcher.HandleCreated(ctx, msg.Value)
	})
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}
