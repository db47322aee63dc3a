package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/md-rashed-zaman/vetbook/libs/auth"
	"github.com/md-rashed-zaman/vetbook/libs/config"
	"github.com/md-rashed-zaman/vetbook/libs/db"
	"github.com/md-rashed-zaman/vetbook/libs/grpcx"
	"github.com/md-rashed-zaman/vetbook/libs/httpx"
	"github.com/md-rashed-zaman/vetbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/vetbook/libs/otel"
	"github.com/md-rashed-zaman/vetbook/libs/runtime"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/intake"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "booking-service:", err)
		os.Exit(1)
	}
}

func run() error {
	config.LoadDotEnv()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := runtime.NewLogger(cfg.Service, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	if cfg.RunMigrations {
		if err := db.MigrateUp(cfg.DatabaseURL, migrations.FS); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{})
	if err != nil {
		return err
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sender, err := newSender(ctx, cfg, logger)
	if err != nil {
		return err
	}
	notifier := notify.NewNotifier(sender, logger, notify.NotifierConfig{
		Locale:   cfg.NotifyLocale,
		Location: cfg.Location,
		Observe:  m.ObserveEmail,
	})

	store := storage.NewPostgres(pool)
	gateway := payments.NewStripeGateway(payments.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Tolerance:     cfg.StripeTolerance,
	})
	if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
		logger.Warn("stripe is not fully configured; intents or webhooks will fail")
	}

	mgr := booking.NewManager(store, gateway, notifier, logger, m, booking.Config{
		Rules:           policy.Rules{LeadTime: cfg.LeadTime},
		DefaultCurrency: cfg.DefaultCurrency,
	})
	calc := availability.NewCalculator(store, availability.Config{
		DayStart: cfg.WorkdayStart,
		DayEnd:   cfg.WorkdayEnd,
		Location: cfg.Location,
		Metrics:  m,
	})
	intakeHandler := intake.NewHandler(store, gateway, logger, m)

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if cfg.KafkaBrokers != "" {
		startMessaging(ctx, cfg, pool, mgr, m, logger)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers), Optional: true})
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox publisher and completion consumer disabled")
	}

	grpcServer, health := grpcx.NewServer(logger)
	go grpcx.WatchHealth(ctx, health, 5*time.Second, db.ReadyCheck(pool))
	if err := grpcx.Serve(ctx, grpcServer, ":"+cfg.GRPCPort, logger); err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	var keys auth.KeySource
	if cfg.JWKSURL != "" {
		keys = auth.NewJWKSClient(cfg.JWKSURL, cfg.JWKSTTL)
	}
	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		HS256Secret: cfg.JWTSecret,
		Keys:        keys,
		Issuer:      cfg.JWTIssuer,
		Leeway:      30 * time.Second,
	})
	if err != nil {
		return err
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	handlers.NewBookingHandler(calc, mgr, intakeHandler, logger).Register(mux, auth.RequireActor(verifier, logger))

	rateLimit, closeLimiter := newRateLimiter(cfg, logger)
	defer closeLimiter()

	cors := httpx.DefaultCORSPolicy(cfg.CORSOrigins)
	cors.AllowedHeaders = append(cors.AllowedHeaders, "Idempotency-Key")
	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithCORS(cors),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithTimeout(cfg.RequestTimeout),
		// Processor deliveries come from a few shared IPs and must not be throttled.
		httpx.SkipPaths(rateLimit, handlers.StripeWebhookPath, "/healthz", "/readyz", "/metrics"),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
	return nil
}

func startMessaging(ctx context.Context, cfg appConfig, pool *db.Pool, mgr *booking.Manager, m *metrics.Metrics, logger *slog.Logger) {
	writer := kafkax.NewWriter(kafkax.SplitBrokers(cfg.KafkaBrokers))
	publisher := outbox.NewPublisher(pool, writer, logger, outbox.PublisherConfig{
		PollEvery: cfg.OutboxPoll,
		BatchSize: cfg.OutboxBatch,
		OnPublish: m.ObserveOutboxPublished,
	})
	go func() {
		publisher.Run(ctx)
		_ = writer.Close()
	}()

	reader := consumer.NewReader(consumer.Config{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.KafkaGroupID,
		Topic:   cfg.CompletedTopic,
	})
	c := consumer.New(logger, reader, inbox.NewRepository(pool), consumer.CompletionHandler(mgr, logger))
	go c.Run(ctx)
}

func newSender(ctx context.Context, cfg appConfig, logger *slog.Logger) (notify.Sender, error) {
	switch strings.ToLower(cfg.EmailProvider) {
	case "smtp":
		return notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailFrom), nil
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("SENDGRID_API_KEY is required for EMAIL_PROVIDER=sendgrid")
		}
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}), nil
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}), nil
	case "log", "":
		return notify.NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
}

// newRateLimiter prefers the shared Redis limiter and falls back to an in-process one.
func newRateLimiter(cfg appConfig, logger *slog.Logger) (httpx.Middleware, func()) {
	if cfg.RedisAddr == "" {
		logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimitPerMinute)
		return httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	rl := httpx.NewRedisRateLimiter(rdb, logger, httpx.RedisRateLimiterConfig{
		Limit:    cfg.RateLimitPerMinute,
		Window:   time.Minute,
		Prefix:   "vetbook:rl",
		FailOpen: cfg.RateLimitFailOpen,
	})
	logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimitPerMinute, "redis_addr", cfg.RedisAddr)
	return rl.Middleware(), func() { _ = rdb.Close() }
}
