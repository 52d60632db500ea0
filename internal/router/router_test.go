package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/handler"
	"github.com/jwalitptl/clinic-booking/internal/middleware"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

type tokens map[string]model.Role

func (t tokens) ValidateToken(_ context.Context, token string) (*model.TokenClaims, error) {
	role, ok := t[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &model.TokenClaims{UserID: uuid.New(), Role: role}, nil
}

// pingHandler answers GET {path}.
type pingHandler struct {
	path string
}

func (p pingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET(p.path, func(c *gin.Context) { c.String(http.StatusOK, "pong") })
}

type slotsPing struct {
	pingHandler
}

func (s slotsPing) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/slots-admin", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	auth := middleware.NewAuthMiddleware(tokens{"user-token": model.RoleUser, "admin-token": model.RoleAdmin})
	r, err := NewRouter(auth, Handlers{
		Health:       handler.NewHandler(nil, prometheus.NewRegistry()),
		Auth:         pingHandler{"/auth/ping"},
		Slots:        slotsPing{pingHandler{"/slots"}},
		Bookings:     pingHandler{"/bookings"},
		Me:           pingHandler{"/me"},
		Users:        pingHandler{"/users"},
		Reservations: pingHandler{"/reservations"},
		Reminders:    pingHandler{"/reminders"},
		Feed:         pingHandler{"/changes"},
	}, logger.Nop(), metrics.NewWithRegistry("test", "router", prometheus.NewRegistry()), RouterConfig{
		Mode:       gin.TestMode,
		CORSConfig: middleware.DefaultCORSConfig(),
	})
	require.NoError(t, err)
	r.Setup()
	return r.Engine()
}

func request(r *gin.Engine, path, token string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestAccessControl(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		path   string
		token  string
		status int
	}{
		{"/api/v1/health/live", "", http.StatusOK},
		{"/api/v1/auth/ping", "", http.StatusOK},
		{"/api/v1/slots", "", http.StatusOK},
		{"/api/v1/changes", "", http.StatusOK},

		{"/api/v1/bookings", "", http.StatusUnauthorized},
		{"/api/v1/bookings", "bogus", http.StatusUnauthorized},
		{"/api/v1/bookings", "user-token", http.StatusOK},
		{"/api/v1/me", "admin-token", http.StatusOK},

		{"/api/v1/admin/users", "", http.StatusUnauthorized},
		{"/api/v1/admin/users", "user-token", http.StatusForbidden},
		{"/api/v1/admin/users", "admin-token", http.StatusOK},
		{"/api/v1/admin/slots-admin", "user-token", http.StatusForbidden},
		{"/api/v1/admin/slots-admin", "admin-token", http.StatusOK},
		{"/api/v1/admin/reservations", "admin-token", http.StatusOK},
		{"/api/v1/admin/reminders", "admin-token", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path+" "+tt.token, func(t *testing.T) {
			assert.Equal(t, tt.status, request(r, tt.path, tt.token))
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
}
