package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/middleware"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/policy"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/internal/repository/memory"
	"github.com/jwalitptl/clinic-booking/internal/service/booking"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

var zone = time.FixedZone("TRT", 3*60*60)

const testUserHeader = "X-Test-User"

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	store  *repository.Store
	slotID string
	seq    int
}

// newTestServer opens one slot three days ahead, so it is bookable and refundable on any clock.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.RegisterValidators())

	store := memory.NewStore()
	rules := policy.DefaultRules(zone)
	svc := booking.NewService(store.Reservations, rules, logger.Nop(),
		metrics.NewWithRegistry("test", "booking_http", prometheus.NewRegistry()))

	day := time.Now().In(zone).AddDate(0, 0, 3)
	if day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	key := model.SlotKey{Date: day.Format(model.DateLayout), Hour: 10}
	_, err := store.Slots.SetStatus(context.Background(), []model.SlotKey{key}, model.SlotStatusFree, time.Now())
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.ErrorHandler(logger.Nop().Zerolog()))
	r.Use(func(c *gin.Context) {
		if raw := c.GetHeader(testUserHeader); raw != "" {
			c.Set(middleware.ContextClaims, &model.TokenClaims{UserID: uuid.MustParse(raw), Role: model.RoleUser})
		}
	})
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))

	return &testServer{router: r, store: store, slotID: key.ID()}
}

func (s *testServer) patient(t *testing.T, credits int) uuid.UUID {
	t.Helper()
	s.seq++
	p := &model.Profile{Phone: fmt.Sprintf("+90555%07d", s.seq), Role: model.RoleUser}
	require.NoError(t, s.store.Profiles.Create(context.Background(), p))
	exp := time.Now().Add(30 * 24 * time.Hour)
	_, err := s.store.Profiles.SetCredits(context.Background(), p.ID, credits, &exp)
	require.NoError(t, err)
	return p.ID
}

func (s *testServer) do(t *testing.T, user uuid.UUID, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != uuid.Nil {
		req.Header.Set(testUserHeader, user.String())
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func (s *testServer) book(t *testing.T, user uuid.UUID) (*httptest.ResponseRecorder, model.BookingOutcome) {
	t.Helper()
	w, env := s.do(t, user, http.MethodPost, "/api/v1/bookings", gin.H{"slot_id": s.slotID})
	var outcome model.BookingOutcome
	if len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, &outcome))
	}
	return w, outcome
}

func TestBook(t *testing.T) {
	s := newTestServer(t)
	first := s.patient(t, 2)
	second := s.patient(t, 2)

	w, outcome := s.book(t, first)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, outcome.OK)
	require.NotNil(t, outcome.ReservationID)
	assert.Equal(t, s.slotID, outcome.SlotID)

	w, outcome = s.book(t, second)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, outcome.OK)
	assert.Equal(t, "slot_taken", outcome.Code)
	assert.NotEmpty(t, outcome.Message)
}

func TestBook_InsufficientCredit(t *testing.T) {
	s := newTestServer(t)
	broke := s.patient(t, 0)

	w, outcome := s.book(t, broke)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "insufficient_credit", outcome.Code)
}

func TestBook_Validation(t *testing.T) {
	s := newTestServer(t)
	p := s.patient(t, 1)

	w, _ := s.do(t, p, http.MethodPost, "/api/v1/bookings", gin.H{"slot_id": "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Errors)
	assert.Equal(t, "slot_id", resp.Errors[0].Field)

	w, _ = s.do(t, p, http.MethodPost, "/api/v1/bookings", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBook_Unauthenticated(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.book(t, uuid.Nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCancel(t *testing.T) {
	s := newTestServer(t)
	p := s.patient(t, 1)

	_, booked := s.book(t, p)
	require.True(t, booked.OK)
	path := "/api/v1/bookings/" + booked.ReservationID.String() + "/cancel"

	w, env := s.do(t, p, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var outcome model.CancelOutcome
	require.NoError(t, json.Unmarshal(env.Data, &outcome))
	assert.True(t, outcome.OK)
	assert.True(t, outcome.Refunded)

	profile, err := s.store.Profiles.Get(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, profile.Credits)

	w, env = s.do(t, p, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &outcome))
	assert.False(t, outcome.OK)
	assert.Equal(t, "not_cancellable", outcome.Code)
}

func TestCancel_NotOwned(t *testing.T) {
	s := newTestServer(t)
	owner := s.patient(t, 1)
	other := s.patient(t, 1)

	_, booked := s.book(t, owner)
	require.True(t, booked.OK)

	w, _ := s.do(t, other, http.MethodPost, "/api/v1/bookings/"+booked.ReservationID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancel_BadID(t *testing.T) {
	s := newTestServer(t)
	p := s.patient(t, 1)

	w, _ := s.do(t, p, http.MethodPost, "/api/v1/bookings/not-a-uuid/cancel", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
