package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLiveness(t *testing.T) {
	r := newRouter(NewHandler(nil, prometheus.NewRegistry()))
	w := get(r, "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"alive"`)
}

func TestReadiness(t *testing.T) {
	healthy := NewHandler(map[string]Check{
		"database": func(context.Context) error { return nil },
	}, prometheus.NewRegistry())
	w := get(newRouter(healthy), "/api/v1/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)

	broken := NewHandler(map[string]Check{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}, prometheus.NewRegistry())
	w = get(newRouter(broken), "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
	assert.NotContains(t, w.Body.String(), "database")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "clinic_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	w := get(newRouter(NewHandler(nil, reg)), "/api/v1/health/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "clinic_test_total 1")
}

func TestOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		ok     bool
		code   string
		status int
	}{
		{"success", true, "", http.StatusOK},
		{"taken", false, "slot_taken", http.StatusConflict},
		{"too late", false, "too_late", http.StatusUnprocessableEntity},
		{"missing", false, "not_found", http.StatusNotFound},
		{"not cancellable", false, "not_cancellable", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Outcome(c, tt.ok, tt.code, gin.H{"ok": tt.ok, "code": tt.code})
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), `"data":{`)
		})
	}
}
