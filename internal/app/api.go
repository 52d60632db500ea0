package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/clinic-booking/internal/config"
	"github.com/jwalitptl/clinic-booking/internal/handler"
	authHandler "github.com/jwalitptl/clinic-booking/internal/handler/auth"
	bookingHandler "github.com/jwalitptl/clinic-booking/internal/handler/booking"
	feedHandler "github.com/jwalitptl/clinic-booking/internal/handler/feed"
	patientHandler "github.com/jwalitptl/clinic-booking/internal/handler/patient"
	reminderHandler "github.com/jwalitptl/clinic-booking/internal/handler/reminder"
	reservationHandler "github.com/jwalitptl/clinic-booking/internal/handler/reservation"
	slotHandler "github.com/jwalitptl/clinic-booking/internal/handler/slot"
	userHandler "github.com/jwalitptl/clinic-booking/internal/handler/user"
	"github.com/jwalitptl/clinic-booking/internal/middleware"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/internal/router"
	authService "github.com/jwalitptl/clinic-booking/internal/service/auth"
	bookingService "github.com/jwalitptl/clinic-booking/internal/service/booking"
	creditService "github.com/jwalitptl/clinic-booking/internal/service/credit"
	"github.com/jwalitptl/clinic-booking/internal/service/notification"
	reminderService "github.com/jwalitptl/clinic-booking/internal/service/reminder"
	slotService "github.com/jwalitptl/clinic-booking/internal/service/slot"
	userService "github.com/jwalitptl/clinic-booking/internal/service/user"
	pkgauth "github.com/jwalitptl/clinic-booking/pkg/auth"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
	"github.com/jwalitptl/clinic-booking/pkg/security"
)

const feedHeartbeat = 15 * time.Second

// APIDeps are the opened resources the HTTP api is assembled from.
type APIDeps struct {
	Config  *config.Config
	Store   *repository.Store
	Brokers *Brokers
	Sender  notification.Sender
	// Enqueuer is nil when no job server is reachable.
	Enqueuer reminderHandler.Enqueuer
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	// HashCost is the bcrypt cost of stored passwords; zero means bcrypt.DefaultCost.
	HashCost int
}

// NewRouter builds the services and handlers and mounts them.
func NewRouter(d APIDeps) (*router.Router, error) {
	cfg := d.Config
	rules, err := Rules(cfg)
	if err != nil {
		return nil, err
	}

	cost := d.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	passwords := security.NewBcryptHasher(cost)

	jwtSvc := pkgauth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	authSvc := authService.NewService(d.Store.Profiles, d.Store.OTP, d.Sender, jwtSvc,
		passwords, security.NewCodeHasher(bcrypt.MinCost),
		authService.Settings{
			CodeTTL:     cfg.OTP.TTL,
			MaxAttempts: cfg.OTP.MaxAttempts,
			Cooldown:    cfg.OTP.Cooldown,
			Region:      cfg.Clinic.PhoneRegion,
			ClinicName:  cfg.Clinic.Name,
		}, d.Logger, d.Metrics)
	bookingSvc := bookingService.NewService(d.Store.Reservations, rules, d.Logger, d.Metrics)
	slotSvc := slotService.NewService(d.Store.Slots, d.Store.Reservations, rules, d.Logger, d.Metrics)
	creditSvc := creditService.NewService(d.Store.Profiles, d.Logger, d.Metrics)
	userSvc := userService.NewService(d.Store.Profiles, passwords, cfg.Clinic.PhoneRegion, d.Logger)
	reminderSvc := reminderService.NewService(d.Store.Reminders, d.Sender, reminderService.Settings{
		BatchSize:  cfg.Reminder.BatchSize,
		ClinicName: cfg.Clinic.Name,
		Signature:  cfg.Reminder.Signature,
		Location:   rules.Location,
	}, d.Logger, d.Metrics)

	checks := map[string]handler.Check{"redis": d.Brokers.Ping}
	if d.Store.Ping != nil {
		checks["database"] = d.Store.Ping
	}

	handlers := router.Handlers{
		Health:       handler.NewHandler(checks, nil),
		Feed:         feedHandler.NewHandler(d.Brokers.Feed, cfg.Redis.ChangesChannel, feedHeartbeat, d.Logger),
		Auth:         authHandler.NewHandler(authSvc),
		Slots:        slotHandler.NewHandler(slotSvc),
		Bookings:     bookingHandler.NewHandler(bookingSvc),
		Me:           patientHandler.NewHandler(creditSvc, bookingSvc),
		Users:        userHandler.NewHandler(userSvc, creditSvc),
		Reservations: reservationHandler.NewHandler(bookingSvc),
		Reminders:    reminderHandler.NewHandler(reminderSvc, d.Enqueuer),
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.Server.AllowedOrigins
	}

	mode := gin.DebugMode
	if cfg.Env == "production" {
		mode = gin.ReleaseMode
	}

	r, err := router.NewRouter(middleware.NewAuthMiddleware(authSvc), handlers, d.Logger, d.Metrics, router.RouterConfig{
		Mode:           mode,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimit: middleware.RateLimiterConfig{
			RPS:     cfg.RateLimit.RequestsPerSecond,
			Burst:   cfg.RateLimit.Burst,
			IdleTTL: cfg.RateLimit.IdleTTL,
		},
		RateLimitEnabled: cfg.RateLimit.Enabled,
		CORSConfig:       cors,
	})
	if err != nil {
		return nil, err
	}
	r.Setup()
	return r, nil
}
