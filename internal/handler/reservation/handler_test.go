package reservation

import (
	"bytes"
	"context"
	"encoding/json"
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

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type fixture struct {
	router  *gin.Engine
	store   *repository.Store
	svc     *booking.Service
	patient uuid.UUID
	resID   uuid.UUID
}

// newFixture books one slot four days ahead for a patient with two credits.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.RegisterValidators())
	ctx := context.Background()

	store := memory.NewStore()
	svc := booking.NewService(store.Reservations, policy.DefaultRules(zone), logger.Nop(),
		metrics.NewWithRegistry("test", "reservation_http", prometheus.NewRegistry()))

	day := time.Now().In(zone).AddDate(0, 0, 4)
	if day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	key := model.SlotKey{Date: day.Format(model.DateLayout), Hour: 11}
	_, err := store.Slots.SetStatus(ctx, []model.SlotKey{key}, model.SlotStatusFree, time.Now())
	require.NoError(t, err)

	p := &model.Profile{Phone: "+905551112233", FirstName: "Ayse", Role: model.RoleUser}
	require.NoError(t, store.Profiles.Create(ctx, p))
	exp := time.Now().Add(30 * 24 * time.Hour)
	_, err = store.Profiles.SetCredits(ctx, p.ID, 2, &exp)
	require.NoError(t, err)

	outcome, err := svc.Book(ctx, p.ID, key.ID())
	require.NoError(t, err)
	require.True(t, outcome.OK, outcome.Code)

	r := gin.New()
	r.Use(middleware.ErrorHandler(logger.Nop().Zerolog()))
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1/admin"))

	return &fixture{router: r, store: store, svc: svc, patient: p.ID, resID: *outcome.ReservationID}
}

func (f *fixture) call(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func (f *fixture) credits(t *testing.T) int {
	t.Helper()
	p, err := f.store.Profiles.Get(context.Background(), f.patient)
	require.NoError(t, err)
	return p.Credits
}

func TestListUpcoming(t *testing.T) {
	f := newFixture(t)

	w, env := f.call(t, http.MethodGet, "/api/v1/admin/reservations", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list []model.ReservationView
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, f.resID, list[0].ID)
	assert.Equal(t, "Ayse", list[0].PatientFirstName)
	assert.Equal(t, "+905551112233", list[0].PatientPhone)

	w, env = f.call(t, http.MethodGet, "/api/v1/admin/reservations?status=approved", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Empty(t, list)

	w, _ = f.call(t, http.MethodGet, "/api/v1/admin/reservations?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReview(t *testing.T) {
	f := newFixture(t)
	path := "/api/v1/admin/reservations/" + f.resID.String() + "/review"

	w, _ := f.call(t, http.MethodPost, path, gin.H{"decision": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := f.call(t, http.MethodPost, path, gin.H{"decision": "approve"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res model.Reservation
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, model.ReservationStatusApproved, res.Status)

	w, _ = f.call(t, http.MethodPost, "/api/v1/admin/reservations/"+uuid.NewString()+"/review", gin.H{"decision": "approve"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReview_RejectRefunds(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, 1, f.credits(t))

	w, _ := f.call(t, http.MethodPost, "/api/v1/admin/reservations/"+f.resID.String()+"/review", gin.H{"decision": "reject"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, f.credits(t))
}

func TestAdminCancel(t *testing.T) {
	f := newFixture(t)
	path := "/api/v1/admin/reservations/" + f.resID.String() + "/cancel"

	w, env := f.call(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var outcome model.CancelOutcome
	require.NoError(t, json.Unmarshal(env.Data, &outcome))
	assert.True(t, outcome.Refunded)
	assert.Equal(t, 2, f.credits(t))

	w, _ = f.call(t, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = f.call(t, http.MethodGet, "/api/v1/admin/reservations/"+f.resID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view model.ReservationView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, model.ReservationStatusCancelled, view.Status)
}
