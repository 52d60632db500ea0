package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/validator"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Status  string                 `json:"status"`
	Code    int                    `json:"code"`
	Reason  string                 `json:"reason,omitempty"`
	Message string                 `json:"message"`
	Errors  []validator.FieldError `json:"errors,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

// ErrorHandler renders the last error attached with c.Error unless a response was written.
func ErrorHandler(log *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		traceID := c.GetString(ContextRequestID)
		lastErr := c.Errors.Last().Err

		resp := ErrorResponse{Status: "error", TraceID: traceID}
		if fields := validator.Fields(lastErr); fields != nil {
			resp.Code = http.StatusBadRequest
			resp.Message = "validation failed"
			resp.Errors = fields
		} else if appErr, ok := apperrors.As(lastErr); ok {
			resp.Code = appErr.StatusCode()
			resp.Reason = string(appErr.Reason)
			resp.Message = appErr.Message
		} else {
			resp.Code = http.StatusInternalServerError
			resp.Message = "internal server error"
		}

		if resp.Code >= http.StatusInternalServerError {
			log.Error().
				Err(lastErr).
				Str("trace_id", traceID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(resp.Code, resp)
	}
}
