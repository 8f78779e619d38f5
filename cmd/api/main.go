package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/config"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/dispatch"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/email"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/handler"
	jobHandler "github.com/shaysadin/wedding-rsvp-sub004/internal/handler/job"
	messageHandler "github.com/shaysadin/wedding-rsvp-sub004/internal/handler/message"
	quotaHandler "github.com/shaysadin/wedding-rsvp-sub004/internal/handler/quota"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/middleware"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/provider"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/quota"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/repository/postgres"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/router"
	jobService "github.com/shaysadin/wedding-rsvp-sub004/internal/service/job"
	messageService "github.com/shaysadin/wedding-rsvp-sub004/internal/service/message"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/worker"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/logger"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/messaging"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/messaging/redis"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)
	appMetrics := metrics.NewMetrics("rsvp", "api")

	db, err := postgres.NewDB(cfg.Database)
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
	if cfg.Redis.URL != "" {
		broker, err = redis.NewRedisBroker(redis.Config{URL: cfg.Redis.URL}, &log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer broker.Close()
	}

	whatsappClient := provider.NewWhatsAppClient(provider.WhatsAppConfig{
		BaseURL:   cfg.Providers.WhatsApp.BaseURL,
		Token:     cfg.Providers.WhatsApp.Token,
		FromPhone: cfg.Providers.WhatsApp.FromPhone,
	})
	smsClient := provider.NewSMSClient(provider.SMSConfig{
		BaseURL:    cfg.Providers.SMS.BaseURL,
		APIKey:     cfg.Providers.SMS.APIKey,
		SenderName: cfg.Providers.SMS.SenderName,
	})
	voiceClient := provider.NewVoiceClient(provider.VoiceConfig{
		BaseURL:    cfg.Providers.Voice.BaseURL,
		AccountSID: cfg.Providers.Voice.AccountSID,
		AuthToken:  cfg.Providers.Voice.AuthToken,
	})
	sender := provider.NewSender(whatsappClient, smsClient, voiceClient,
		cfg.Providers.CallerNumber, cfg.Providers.DefaultRegion)

	ledger := quota.NewLedger(tenantRepo, attemptRepo, nil, appLogger, appMetrics)
	recorder := dispatch.NewRecorder(attemptRepo, appLogger, appMetrics)
	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		Concurrency: cfg.Dispatch.Concurrency,
		WindowDelay: cfg.Dispatch.WindowDelay,
	}, sender, ledger, recorder, jobRepo, guestRepo, appLogger, appMetrics)

	mailer := email.NewMailer(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, appLogger)

	pool := worker.NewPool(cfg.Dispatch.PoolWorkers, cfg.Dispatch.PoolBuffer, appLogger)

	jobSvc := jobService.NewService(jobRepo, attemptRepo, guestRepo, eventRepo, tenantRepo,
		ledger, sender, dispatcher, pool, broker, mailer, appLogger, appMetrics)
	messageSvc := messageService.NewService(attemptRepo, guestRepo, eventRepo, tenantRepo,
		ledger, sender, recorder, appLogger, appMetrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx, jobSvc.Dispatch)

	scheduler := worker.NewScheduler(jobRepo, pool, cfg.Dispatch.PollInterval, appLogger)
	go scheduler.Run(ctx)

	auth := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	r := router.NewRouter(auth, handler.NewHandler(db), router.Config{
		RateLimit: middleware.RateLimiterConfig{
			RPS:   cfg.RateLimit.RPS,
			Burst: cfg.RateLimit.Burst,
		},
	},
		jobHandler.NewHandler(jobSvc),
		messageHandler.NewHandler(messageSvc),
		quotaHandler.NewHandler(ledger),
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	pool.Wait()
	log.Info().Msg("server stopped")
}
