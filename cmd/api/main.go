package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/arogya-clinic/whatsapp-assistant/internal/api/handlers"
	"github.com/arogya-clinic/whatsapp-assistant/internal/api/router"
	"github.com/arogya-clinic/whatsapp-assistant/internal/appointments"
	"github.com/arogya-clinic/whatsapp-assistant/internal/bot"
	appconfig "github.com/arogya-clinic/whatsapp-assistant/internal/config"
	"github.com/arogya-clinic/whatsapp-assistant/internal/conversation"
	"github.com/arogya-clinic/whatsapp-assistant/internal/notify"
	"github.com/arogya-clinic/whatsapp-assistant/internal/observability/metrics"
	"github.com/arogya-clinic/whatsapp-assistant/internal/patients"
	"github.com/arogya-clinic/whatsapp-assistant/internal/scheduler"
	"github.com/arogya-clinic/whatsapp-assistant/internal/whatsapp"
	"github.com/arogya-clinic/whatsapp-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting whatsapp-assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, per-phone locking disabled", "error", err)
			redisClient = nil
		}
	}

	waClient, err := whatsapp.New(whatsapp.Config{
		BaseURL:      cfg.WhatsAppAPIBaseURL,
		AccessToken:  cfg.WhatsAppAccessToken,
		PhoneID:      cfg.WhatsAppPhoneID,
		TemplateLang: cfg.WhatsAppTemplateLang,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("failed to create whatsapp client", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	botMetrics := metrics.NewBotMetrics(registry)

	convStore := conversation.NewStore(pool)
	messageLog := conversation.NewMessageLog(pool)
	patientStore := patients.NewStore(pool)
	apptStore := appointments.NewStore(pool)
	schedStore := scheduler.NewStore(pool)

	reminders := scheduler.NewScheduler(schedStore, logger)
	processor := scheduler.NewProcessor(schedStore, waClient, apptStore, convStore, messageLog, logger).
		WithBatchSize(cfg.CronBatchSize).
		WithRetryPolicy(cfg.CronRetryMax, cfg.CronRetryBackoff).
		WithMetrics(botMetrics)

	notifier := notify.NewService(
		buildEmailSender(ctx, cfg, logger),
		notify.NewStore(pool),
		patientStore,
		notify.ClinicInfo{
			Name:    cfg.ClinicName,
			Phone:   cfg.ClinicPhone,
			Address: cfg.ClinicAddress,
			Hours:   cfg.ClinicHours,
		},
		logger,
	)

	engine := bot.NewEngine(convStore, messageLog, waClient, patientStore, apptStore, reminders, notifier, botMetrics, logger, bot.Options{
		SessionTimeout:     cfg.SessionTimeout,
		BookingHorizonDays: cfg.BookingHorizonDays,
		ClinicName:         cfg.ClinicName,
		ClinicPhone:        cfg.ClinicPhone,
		ClinicAddress:      cfg.ClinicAddress,
		ClinicHours:        cfg.ClinicHours,
	})

	phoneLock := bot.NewPhoneLock(redisClient, cfg.PhoneLockTTL, logger)

	webhookHandler := handlers.NewWebhookHandler(engine, phoneLock, cfg.WhatsAppVerifyToken, botMetrics, logger)
	cronHandler := handlers.NewCronHandler(processor, cfg.CronSecret, logger)

	r := router.New(&router.Config{
		Logger:         logger,
		Webhook:        webhookHandler,
		Cron:           cronHandler,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	tickerCtx, stopTicker := context.WithCancel(ctx)
	defer stopTicker()
	if cfg.CronTickerEnabled {
		go runScheduledTicker(tickerCtx, processor, cfg.CronTickerInterval, logger)
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopTicker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// runScheduledTicker drives the processor locally when no external cron is
// configured, useful for single-instance deployments.
func runScheduledTicker(ctx context.Context, processor *scheduler.Processor, interval time.Duration, logger *logging.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := processor.ProcessDue(ctx)
			if err != nil {
				logger.Error("scheduled tick failed", "error", err)
				continue
			}
			if result.Total > 0 {
				logger.Info("scheduled tick complete", "processed", result.Processed, "errors", result.Errors)
			}
		}
	}
}

func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Error("failed to load AWS config, email disabled", "error", err)
			return notify.NewStubEmailSender(logger)
		}
		sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.ClinicName,
		}, logger)
		if sender == nil {
			return notify.NewStubEmailSender(logger)
		}
		return sender
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender == nil {
			logger.Warn("sendgrid selected but no API key set, email disabled")
			return notify.NewStubEmailSender(logger)
		}
		return sender
	default:
		return notify.NewStubEmailSender(logger)
	}
}
