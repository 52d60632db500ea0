package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-booking/internal/app"
	"github.com/jwalitptl/clinic-booking/internal/config"
	"github.com/jwalitptl/clinic-booking/internal/service/notification"
	reminderService "github.com/jwalitptl/clinic-booking/internal/service/reminder"
	"github.com/jwalitptl/clinic-booking/internal/worker"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
	pkgworker "github.com/jwalitptl/clinic-booking/pkg/worker"
)

const (
	healthAddr      = ":8081"
	otpCleanupSpec  = "@hourly"
	otpRetention    = 24 * time.Hour
	concurrency     = 5
	shutdownTimeout = 10 * time.Second
)

func setupHealthCheck(log *logger.Logger, ready func(context.Context) error) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/health/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: healthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "Health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	appLogger := app.NewLogger(cfg).WithFields(map[string]interface{}{
		"worker_id": fmt.Sprintf("worker-%s-%d", hostname, os.Getpid()),
	})

	// The job queue, the outbox relay and the change feed need shared storage.
	if cfg.Storage.Driver == "memory" {
		appLogger.Fatal(errors.New("memory storage"), "The worker needs the postgres storage driver")
	}

	zapLogger, err := logger.NewZap(cfg.Env)
	if err != nil {
		appLogger.Fatal(err, "Failed to build zap logger")
	}
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()

	m := metrics.NewMetrics("clinic", "worker")

	store, err := app.OpenStore(cfg, sugar)
	if err != nil {
		appLogger.Fatal(err, "Failed to open storage")
	}
	defer store.Close()

	brokers, err := app.OpenBrokers(cfg, appLogger)
	if err != nil {
		appLogger.Fatal(err, "Failed to open brokers")
	}
	defer brokers.Close()

	rules, err := app.Rules(cfg)
	if err != nil {
		appLogger.Fatal(err, "Invalid booking rules")
	}

	sender, err := notification.NewSender(cfg, appLogger)
	if err != nil {
		appLogger.Fatal(err, "Failed to create notification sender")
	}

	reminders := reminderService.NewService(store.Reminders, sender, reminderService.Settings{
		BatchSize:  cfg.Reminder.BatchSize,
		ClinicName: cfg.Clinic.Name,
		Signature:  cfg.Reminder.Signature,
		Location:   rules.Location,
	}, appLogger, m)

	// Initialize outbox processor
	outboxCfg := cfg.Outbox.ToWorkerConfig()
	outboxCfg.FeedChannel = cfg.Redis.ChangesChannel
	processor, err := pkgworker.NewOutboxProcessor(store.Outbox, brokers.Events, brokers.Feed, outboxCfg, appLogger, m)
	if err != nil {
		appLogger.Fatal(err, "Failed to create outbox processor")
	}

	redisOpt, err := app.QueueRedisOpt(cfg.Redis)
	if err != nil {
		appLogger.Fatal(err, "Invalid queue configuration")
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			worker.QueueDefault: 6,
			worker.QueueLow:     1,
		},
		Logger: sugar,
	})
	handlers := worker.NewHandlers(reminders, store.OTP, otpRetention, appLogger)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: rules.Location,
		Logger:   sugar,
	})
	if err := worker.RegisterPeriodic(scheduler, cfg.Reminder.Schedule, otpCleanupSpec); err != nil {
		appLogger.Fatal(err, "Failed to register periodic tasks")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := setupHealthCheck(appLogger, func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return err
		}
		return brokers.Ping(ctx)
	})

	if err := srv.Start(handlers.Mux()); err != nil {
		appLogger.Fatal(err, "Failed to start job server")
	}
	if err := scheduler.Start(); err != nil {
		appLogger.Fatal(err, "Failed to start scheduler")
	}
	appLogger.Info("Worker started", "schedule", cfg.Reminder.Schedule, "broker", cfg.Outbox.Broker)

	processor.Start(ctx)

	appLogger.Info("Shutting down...")
	scheduler.Shutdown()
	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := health.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "Health check server forced to shutdown")
	}
}
