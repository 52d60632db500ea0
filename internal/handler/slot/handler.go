package slot

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-booking/internal/handler"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/service/slot"
)

type Handler struct {
	svc *slot.Service
}

func NewHandler(svc *slot.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public read endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	slots := r.Group("/slots")
	{
		slots.GET("", h.ListSlots)
		slots.POST("/reserved", h.ReservedSlots)
		slots.GET("/availability", h.Availability)
	}
}

// RegisterAdminRoutes mounts the schedule editing endpoints under an admin group.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	slots := r.Group("/slots")
	{
		slots.PUT("", h.SetSlotStatus)
		slots.PUT("/day", h.SetDayStatus)
	}
}

// dateRange defaults to the bookable window when the caller gives no range.
func (h *Handler) dateRange(c *gin.Context) model.DateRange {
	from, to := h.svc.BookableRange()
	rng := model.DateRange{
		From: c.DefaultQuery("from", from),
		To:   c.DefaultQuery("to", to),
	}
	return rng
}

func (h *Handler) ListSlots(c *gin.Context) {
	rng := h.dateRange(c)
	slots, err := h.svc.ListSlots(c.Request.Context(), rng.From, rng.To)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, slots)
}

func (h *Handler) ReservedSlots(c *gin.Context) {
	var req model.ReservedSlotsRequest
	if !handler.Bind(c, &req) {
		return
	}

	ids, err := h.svc.ReservedSlots(c.Request.Context(), req.SlotIDs)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, gin.H{"slot_ids": ids})
}

func (h *Handler) Availability(c *gin.Context) {
	rng := h.dateRange(c)
	grid, err := h.svc.Availability(c.Request.Context(), rng.From, rng.To)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, gin.H{
		"from":  rng.From,
		"to":    rng.To,
		"slots": grid,
	})
}

func (h *Handler) SetSlotStatus(c *gin.Context) {
	var req model.SetSlotStatusRequest
	if !handler.Bind(c, &req) {
		return
	}

	result, err := h.svc.SetSlotStatus(c.Request.Context(), req.Date, req.Hour, req.Status)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, result)
}

func (h *Handler) SetDayStatus(c *gin.Context) {
	var req model.SetDayStatusRequest
	if !handler.Bind(c, &req) {
		return
	}

	results, err := h.svc.SetDayStatus(c.Request.Context(), req.Date, req.Status)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, results)
}
