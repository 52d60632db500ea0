package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-booking/internal/handler"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/service/auth"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

type Handler struct {
	svc *auth.Service
}

func NewHandler(svc *auth.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/otp/send", h.SendOTP)
		auth.POST("/otp/verify", h.VerifyOTP)
		auth.GET("/check-phone", h.CheckPhone)
		auth.POST("/login", h.Login)
	}
}

func (h *Handler) SendOTP(c *gin.Context) {
	var req model.SendOTPRequest
	if !handler.Bind(c, &req) {
		return
	}

	if err := h.svc.SendOTP(c.Request.Context(), req.Phone); err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, handler.NewSuccessResponse(gin.H{"sent": true}))
}

func (h *Handler) VerifyOTP(c *gin.Context) {
	var req model.VerifyOTPRequest
	if !handler.Bind(c, &req) {
		return
	}

	resp, err := h.svc.VerifyOTP(c.Request.Context(), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Existing {
		status = http.StatusOK
	}
	handler.OK(c, status, resp)
}

func (h *Handler) CheckPhone(c *gin.Context) {
	phone := c.Query("phone")
	if phone == "" {
		handler.Fail(c, apperrors.BadRequest("phone is required", nil))
		return
	}

	exists, err := h.svc.CheckPhone(c.Request.Context(), phone)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, gin.H{"exists": exists})
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.Bind(c, &req) {
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), req.Phone, req.Password)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, tokens)
}
