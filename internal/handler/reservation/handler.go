package reservation

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-booking/internal/handler"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/service/booking"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

// Handler is the admin view over every patient's reservations.
type Handler struct {
	svc *booking.Service
}

func NewHandler(svc *booking.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	reservations := r.Group("/reservations")
	{
		reservations.GET("", h.ListUpcoming)
		reservations.GET("/:id", h.GetReservation)
		reservations.POST("/:id/review", h.Review)
		reservations.POST("/:id/cancel", h.Cancel)
	}
}

// parseStatuses reads a comma separated status list.
func parseStatuses(raw string) ([]model.ReservationStatus, error) {
	if raw == "" {
		return nil, nil
	}
	var statuses []model.ReservationStatus
	for _, part := range strings.Split(raw, ",") {
		s := model.ReservationStatus(strings.TrimSpace(part))
		switch s {
		case model.ReservationStatusPending, model.ReservationStatusBooked, model.ReservationStatusApproved,
			model.ReservationStatusRejected, model.ReservationStatusCancelled:
			statuses = append(statuses, s)
		default:
			return nil, apperrors.BadRequest("unknown status "+string(s), nil)
		}
	}
	return statuses, nil
}

func (h *Handler) ListUpcoming(c *gin.Context) {
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		handler.Fail(c, err)
		return
	}

	reservations, err := h.svc.ListUpcoming(c.Request.Context(), statuses, handler.Page(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, reservations)
}

func (h *Handler) GetReservation(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	reservation, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, reservation)
}

func (h *Handler) Review(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req model.ReviewRequest
	if !handler.Bind(c, &req) {
		return
	}

	reservation, err := h.svc.Review(c.Request.Context(), id, req.Decision)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, reservation)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	outcome, err := h.svc.CancelAny(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.Outcome(c, outcome.OK, outcome.Code, outcome)
}
