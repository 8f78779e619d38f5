package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/config"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/dispatch"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/email"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/provider"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/quota"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/repository/postgres"
	jobService "github.com/shaysadin/wedding-rsvp-sub004/internal/service/job"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/worker"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/logger"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/messaging"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/messaging/redis"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/metrics"
)

// workerConfig is read from the environment; the worker runs headless in
// containers where a config file is not mounted.
type workerConfig struct {
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"rsvp"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	RedisURL string `envconfig:"REDIS_URL"`

	WhatsAppBaseURL   string `envconfig:"WHATSAPP_BASE_URL"`
	WhatsAppToken     string `envconfig:"WHATSAPP_TOKEN"`
	WhatsAppFromPhone string `envconfig:"WHATSAPP_FROM_PHONE"`
	SMSBaseURL        string `envconfig:"SMS_BASE_URL"`
	SMSAPIKey         string `envconfig:"SMS_API_KEY"`
	SMSSenderName     string `envconfig:"SMS_SENDER_NAME"`
	VoiceBaseURL      string `envconfig:"VOICE_BASE_URL"`
	VoiceAccountSID   string `envconfig:"VOICE_ACCOUNT_SID"`
	VoiceAuthToken    string `envconfig:"VOICE_AUTH_TOKEN"`
	CallerNumber      string `envconfig:"CALLER_NUMBER"`
	DefaultRegion     string `envconfig:"DEFAULT_REGION" default:"IL"`

	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"SMTP_FROM"`

	Concurrency    int           `envconfig:"DISPATCH_CONCURRENCY" default:"3"`
	WindowDelay    time.Duration `envconfig:"DISPATCH_WINDOW_DELAY" default:"1s"`
	PoolWorkers    int           `envconfig:"POOL_WORKERS" default:"4"`
	PoolBuffer     int           `envconfig:"POOL_BUFFER" default:"128"`
	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"15s"`
	ReconcileEvery time.Duration `envconfig:"RECONCILE_EVERY" default:"1h"`
	MetricsPort    int           `envconfig:"METRICS_PORT" default:"9091"`
}

func main() {
	var cfg workerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load worker configuration")
	}

	appLogger := logger.NewLogger(nil)
	appMetrics := metrics.NewMetrics("rsvp", "worker")

	db, err := postgres.NewDB(config.DatabaseConfig{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	base := postgres.NewBaseRepository(db)
	tenantRepo := postgres.NewTenantRepository(base)
	eventRepo := postgres.NewEventRepository(base)
	guestRepo := postgres.NewGuestRepository(base)
	jobRepo := postgres.NewJobRepository(base)
	attemptRepo := postgres.NewAttemptRepository(base)

	var broker messaging.Broker
	if cfg.RedisURL != "" {
		broker, err = redis.NewRedisBroker(redis.Config{URL: cfg.RedisURL}, &log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer broker.Close()
	}

	sender := provider.NewSender(
		provider.NewWhatsAppClient(provider.WhatsAppConfig{
			BaseURL:   cfg.WhatsAppBaseURL,
			Token:     cfg.WhatsAppToken,
			FromPhone: cfg.WhatsAppFromPhone,
		}),
		provider.NewSMSClient(provider.SMSConfig{
			BaseURL:    cfg.SMSBaseURL,
			APIKey:     cfg.SMSAPIKey,
			SenderName: cfg.SMSSenderName,
		}),
		provider.NewVoiceClient(provider.VoiceConfig{
			BaseURL:    cfg.VoiceBaseURL,
			AccountSID: cfg.VoiceAccountSID,
			AuthToken:  cfg.VoiceAuthToken,
		}),
		cfg.CallerNumber, cfg.DefaultRegion,
	)

	ledger := quota.NewLedger(tenantRepo, attemptRepo, nil, appLogger, appMetrics)
	recorder := dispatch.NewRecorder(attemptRepo, appLogger, appMetrics)
	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		Concurrency: cfg.Concurrency,
		WindowDelay: cfg.WindowDelay,
	}, sender, ledger, recorder, jobRepo, guestRepo, appLogger, appMetrics)

	mailer := email.NewMailer(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, appLogger)

	pool := worker.NewPool(cfg.PoolWorkers, cfg.PoolBuffer, appLogger)
	jobSvc := jobService.NewService(jobRepo, attemptRepo, guestRepo, eventRepo, tenantRepo,
		ledger, sender, dispatcher, pool, broker, mailer, appLogger, appMetrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx, jobSvc.Dispatch)
	go worker.NewScheduler(jobRepo, pool, cfg.PollInterval, appLogger).Run(ctx)
	go worker.NewReconciler(tenantRepo, ledger, cfg.ReconcileEvery, appLogger).Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start metrics server")
		}
	}()
	log.Info().Msg("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down worker...")

	cancel()
	pool.Wait()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	log.Info().Msg("worker stopped")
}
