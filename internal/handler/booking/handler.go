package booking

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-booking/internal/handler"
	"github.com/jwalitptl/clinic-booking/internal/middleware"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/service/booking"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

type Handler struct {
	svc *booking.Service
}

func NewHandler(svc *booking.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes expects r to be behind the authentication middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/bookings")
	{
		bookings.POST("", h.Book)
		bookings.POST("/:id/cancel", h.Cancel)
	}
}

func (h *Handler) Book(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		handler.Fail(c, apperrors.Unauthorized(nil))
		return
	}

	var req model.BookRequest
	if !handler.Bind(c, &req) {
		return
	}

	outcome, err := h.svc.Book(c.Request.Context(), claims.UserID, req.SlotID)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.Outcome(c, outcome.OK, outcome.Code, outcome)
}

func (h *Handler) Cancel(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		handler.Fail(c, apperrors.Unauthorized(nil))
		return
	}

	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	outcome, err := h.svc.Cancel(c.Request.Context(), claims.UserID, id)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.Outcome(c, outcome.OK, outcome.Code, outcome)
}
