package main

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/vetbook/libs/config"
)

type appConfig struct {
	Service       string
	Port          string
	GRPCPort      string
	LogLevel      string
	DatabaseURL   string
	RunMigrations bool

	WorkdayStart    time.Duration
	WorkdayEnd      time.Duration
	Location        *time.Location
	LeadTime        time.Duration
	DefaultCurrency string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeTolerance     time.Duration

	EmailProvider  string
	EmailFrom      string
	EmailFromName  string
	SMTPHost       string
	SMTPPort       string
	SendGridAPIKey string
	AWSRegion      string
	NotifyLocale   string

	KafkaBrokers   string
	KafkaGroupID   string
	CompletedTopic string
	OutboxPoll     time.Duration
	OutboxBatch    int

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimitPerMinute int
	RateLimitFailOpen  bool

	JWTSecret string
	JWTIssuer string
	JWKSURL   string
	JWKSTTL   time.Duration

	CORSOrigins    []string
	RequestTimeout time.Duration
}

// loadConfig reads the environment, reporting every invalid variable at once.
func loadConfig() (appConfig, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := appConfig{
		Service:       config.String("SERVICE_NAME", "booking-service"),
		LogLevel:      config.String("LOG_LEVEL", "info"),
		RunMigrations: config.Bool("RUN_MIGRATIONS", false),

		DefaultCurrency: config.String("DEFAULT_CURRENCY", "eur"),

		StripeSecretKey:     config.String("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: config.String("STRIPE_WEBHOOK_SECRET", ""),

		EmailProvider:  config.String("EMAIL_PROVIDER", "log"),
		EmailFrom:      config.String("EMAIL_FROM", "no-reply@vetbook.local"),
		EmailFromName:  config.String("EMAIL_FROM_NAME", "Vetbook"),
		SMTPHost:       config.String("SMTP_HOST", "localhost"),
		SMTPPort:       config.String("SMTP_PORT", "1025"),
		SendGridAPIKey: config.String("SENDGRID_API_KEY", ""),
		AWSRegion:      config.String("AWS_REGION", "eu-west-1"),
		NotifyLocale:   config.String("NOTIFY_LOCALE", "es"),

		KafkaBrokers:   config.String("KAFKA_BROKERS", ""),
		KafkaGroupID:   config.String("KAFKA_GROUP_ID", "booking-service"),
		CompletedTopic: config.String("KAFKA_COMPLETED_TOPIC", "records.appointment.completed.v1"),

		RedisAddr:         config.String("REDIS_ADDR", ""),
		RedisPassword:     config.String("REDIS_PASSWORD", ""),
		RateLimitFailOpen: config.Bool("RATE_LIMIT_FAIL_OPEN", true),

		JWTSecret: config.String("JWT_SECRET", ""),
		JWTIssuer: config.String("JWT_ISSUER", ""),
		JWKSURL:   config.String("JWKS_URL", ""),

		CORSOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
	}

	var err error
	cfg.Port, err = config.Port("PORT", "8083")
	collect(err)
	cfg.GRPCPort, err = config.Port("GRPC_PORT", "9093")
	collect(err)
	cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL")
	collect(err)
	cfg.WorkdayStart, err = config.Clock("WORKDAY_START", "09:00")
	collect(err)
	cfg.WorkdayEnd, err = config.Clock("WORKDAY_END", "18:00")
	collect(err)
	cfg.Location, err = config.Location("CLINIC_TZ", "UTC")
	collect(err)
	cfg.LeadTime, err = config.Duration("LEAD_TIME", 24*time.Hour)
	collect(err)
	cfg.StripeTolerance, err = config.Duration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute)
	collect(err)
	cfg.OutboxPoll, err = config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second)
	collect(err)
	cfg.OutboxBatch, err = config.Int("OUTBOX_BATCH_SIZE", 50)
	collect(err)
	cfg.RedisDB, err = config.Int("REDIS_DB", 0)
	collect(err)
	cfg.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 120)
	collect(err)
	cfg.JWKSTTL, err = config.Duration("JWKS_CACHE_TTL", 10*time.Minute)
	collect(err)
	cfg.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	collect(err)

	if cfg.WorkdayEnd <= cfg.WorkdayStart {
		collect(errors.New("WORKDAY_END must be after WORKDAY_START"))
	}
	if cfg.JWTSecret == "" && cfg.JWKSURL == "" {
		collect(errors.New("JWT_SECRET or JWKS_URL is required"))
	}
	return cfg, errors.Join(errs...)
}
