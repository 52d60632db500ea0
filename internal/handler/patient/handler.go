package patient

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-booking/internal/handler"
	"github.com/jwalitptl/clinic-booking/internal/middleware"
	"github.com/jwalitptl/clinic-booking/internal/service/booking"
	"github.com/jwalitptl/clinic-booking/internal/service/credit"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

// Handler serves the signed-in patient's own profile and reservations.
type Handler struct {
	credits  *credit.Service
	bookings *booking.Service
}

func NewHandler(credits *credit.Service, bookings *booking.Service) *Handler {
	return &Handler{credits: credits, bookings: bookings}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	me := r.Group("/me")
	{
		me.GET("", h.GetProfile)
		me.GET("/reservations", h.ListReservations)
	}
}

func (h *Handler) GetProfile(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		handler.Fail(c, apperrors.Unauthorized(nil))
		return
	}

	view, err := h.credits.Balance(c.Request.Context(), claims.UserID)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, view)
}

func (h *Handler) ListReservations(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		handler.Fail(c, apperrors.Unauthorized(nil))
		return
	}

	scope := booking.Scope(c.DefaultQuery("scope", string(booking.ScopeUpcoming)))
	reservations, err := h.bookings.ListForPatient(c.Request.Context(), claims.UserID, scope, handler.Page(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, reservations)
}
