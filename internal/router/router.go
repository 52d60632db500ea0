package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-booking/internal/handler"
	"github.com/jwalitptl/clinic-booking/internal/middleware"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

const (
	apiPrefix   = "/api/v1"
	changesPath = apiPrefix + "/changes"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// AdminHandler also mounts endpoints under the admin group.
type AdminHandler interface {
	Handler
	RegisterAdminRoutes(*gin.RouterGroup)
}

// Handlers groups the route handlers by audience.
type Handlers struct {
	Health *handler.Handler
	Feed   Handler

	// public
	Auth  Handler
	Slots AdminHandler

	// signed-in patients and admins
	Bookings Handler
	Me       Handler

	// admins only
	Users        Handler
	Reservations Handler
	Reminders    Handler
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
}

type RouterConfig struct {
	Mode           string
	RequestTimeout time.Duration
	RateLimit      middleware.RateLimiterConfig
	// RateLimitEnabled turns the per-client limiter on.
	RateLimitEnabled bool
	CORSConfig       middleware.CORSConfig
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	handlers Handlers,
	log *logger.Logger,
	m *metrics.Metrics,
	config RouterConfig,
) (*Router, error) {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if err := middleware.RegisterValidators(); err != nil {
		return nil, err
	}

	engine := gin.New()
	zl := log.Zerolog()

	r := &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
	}

	// Add core middlewares
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(zl),
		middleware.Logger(zl),
		middleware.Metrics(m),
		middleware.ErrorHandler(zl),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig(config.Mode == gin.ReleaseMode)),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(middleware.DefaultMaxBody),
		middleware.Timeout(middleware.TimeoutConfig{
			Duration:     config.RequestTimeout,
			SkipPrefixes: []string{changesPath},
		}),
	)

	if config.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(config.RateLimit)
		engine.Use(rateLimiter.RateLimit())
	}

	return r, nil
}

func (r *Router) Setup() {
	api := r.engine.Group(apiPrefix)

	if r.handlers.Health != nil {
		r.handlers.Health.RegisterRoutes(api)
	}

	r.setupPublicRoutes(api)

	patient := api.Group("")
	patient.Use(
		r.auth.Authenticate(),
		r.auth.RequireRole(model.RoleUser, model.RoleAdmin),
	)
	r.setupPatientRoutes(patient)

	admin := api.Group("/admin")
	admin.Use(
		r.auth.Authenticate(),
		r.auth.RequireRole(model.RoleAdmin),
	)
	r.setupAdminRoutes(admin)
}

func register(rg *gin.RouterGroup, handlers ...Handler) {
	for _, h := range handlers {
		if h != nil {
			h.RegisterRoutes(rg)
		}
	}
}

func (r *Router) setupPublicRoutes(rg *gin.RouterGroup) {
	register(rg, r.handlers.Auth, r.handlers.Feed)
	if r.handlers.Slots != nil {
		r.handlers.Slots.RegisterRoutes(rg)
	}
}

func (r *Router) setupPatientRoutes(rg *gin.RouterGroup) {
	register(rg, r.handlers.Bookings, r.handlers.Me)
}

func (r *Router) setupAdminRoutes(rg *gin.RouterGroup) {
	if r.handlers.Slots != nil {
		r.handlers.Slots.RegisterAdminRoutes(rg)
	}
	register(rg, r.handlers.Users, r.handlers.Reservations, r.handlers.Reminders)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
