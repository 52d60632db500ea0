package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-booking/internal/handler"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/service/credit"
	"github.com/jwalitptl/clinic-booking/internal/service/user"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

// Handler serves patient account administration.
type Handler struct {
	service user.UserServicer
	credits *credit.Service
}

func NewHandler(service user.UserServicer, credits *credit.Service) *Handler {
	return &Handler{service: service, credits: credits}
}

// RegisterRoutes expects r to be an admin-only group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.POST("", h.CreateUser)
		users.GET("", h.ListUsers)
		users.GET("/:id", h.GetUser)
		users.PATCH("/:id", h.UpdateUser)
		users.DELETE("/:id", h.DeleteUser)
		users.PUT("/:id/credits", h.SetCredits)
	}
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req model.CreateUserRequest
	if !handler.Bind(c, &req) {
		return
	}

	profile, err := h.service.CreateUser(c.Request.Context(), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusCreated, profile)
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	profile, err := h.credits.Balance(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, profile)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateUserRequest
	if !handler.Bind(c, &req) {
		return
	}

	profile, err := h.service.UpdateUser(c.Request.Context(), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, profile)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteUser(c.Request.Context(), id); err != nil {
		handler.Fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ListUsers(c *gin.Context) {
	role := model.Role(c.Query("role"))
	if role != "" && role != model.RoleUser && role != model.RoleAdmin {
		handler.Fail(c, apperrors.BadRequest("role must be user or admin", nil))
		return
	}

	filters := &model.ProfileFilters{
		Query:      c.Query("q"),
		Role:       role,
		Pagination: handler.Page(c),
	}
	profiles, total, err := h.service.ListUsers(c.Request.Context(), filters)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.List(c, profiles, total)
}

func (h *Handler) SetCredits(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req model.SetCreditsRequest
	if !handler.Bind(c, &req) {
		return
	}

	profile, err := h.credits.SetCredits(c.Request.Context(), id, req.Amount, req.Days)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, profile)
}
