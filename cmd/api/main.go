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
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-booking/internal/app"
	"github.com/jwalitptl/clinic-booking/internal/config"
	"github.com/jwalitptl/clinic-booking/internal/service/notification"
	"github.com/jwalitptl/clinic-booking/internal/worker"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
	pkgworker "github.com/jwalitptl/clinic-booking/pkg/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := app.NewLogger(cfg)
	m := metrics.NewMetrics("clinic", "api")

	zapLogger, err := logger.NewZap(cfg.Env)
	if err != nil {
		appLogger.Fatal(err, "failed to build zap logger")
	}
	defer zapLogger.Sync()

	// Initialize storage and brokers
	store, err := app.OpenStore(cfg, zapLogger.Sugar())
	if err != nil {
		appLogger.Fatal(err, "failed to open storage")
	}
	defer store.Close()

	brokers, err := app.OpenBrokers(cfg, appLogger)
	if err != nil {
		appLogger.Fatal(err, "failed to open brokers")
	}
	defer brokers.Close()

	sender, err := notification.NewSender(cfg, appLogger)
	if err != nil {
		appLogger.Fatal(err, "failed to create notification sender")
	}

	deps := app.APIDeps{
		Config:  cfg,
		Store:   store,
		Brokers: brokers,
		Sender:  sender,
		Logger:  appLogger,
		Metrics: m,
	}

	// The job queue lives in redis, which the memory driver runs without.
	if cfg.Storage.Driver != "memory" {
		redisOpt, err := app.QueueRedisOpt(cfg.Redis)
		if err != nil {
			appLogger.Fatal(err, "invalid queue configuration")
		}
		enqueuer := worker.NewEnqueuer(asynq.NewClient(redisOpt))
		defer enqueuer.Close()
		deps.Enqueuer = enqueuer
	}

	// Setup router
	r, err := app.NewRouter(deps)
	if err != nil {
		appLogger.Fatal(err, "failed to build router")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// With postgres the worker relays the outbox. In memory nothing else can.
	if cfg.Storage.Driver == "memory" {
		outboxCfg := cfg.Outbox.ToWorkerConfig()
		outboxCfg.FeedChannel = cfg.Redis.ChangesChannel
		processor, err := pkgworker.NewOutboxProcessor(store.Outbox, brokers.Events, brokers.Feed, outboxCfg, appLogger, m)
		if err != nil {
			appLogger.Fatal(err, "failed to create outbox processor")
		}
		go processor.Start(ctx)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		appLogger.Info("Server starting", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
