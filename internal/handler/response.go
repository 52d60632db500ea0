package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/validator"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	// Total is set on paginated listings.
	Total *int `json:"total,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// OK writes data in the success envelope.
func OK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, NewSuccessResponse(data))
}

// List writes a page of results with the total count.
func List(c *gin.Context, data interface{}, total int) {
	c.JSON(http.StatusOK, &Response{Status: "success", Data: data, Total: &total})
}

// Fail hands err to the error middleware and stops the chain.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// Bind decodes the JSON body into obj. On failure it reports the error and returns false.
func Bind(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		if validator.Fields(err) == nil {
			err = apperrors.BadRequest("invalid request body", err)
		}
		Fail(c, err)
		return false
	}
	return true
}

// BindQuery decodes query parameters into obj.
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		if validator.Fields(err) == nil {
			err = apperrors.BadRequest("invalid query", err)
		}
		Fail(c, err)
		return false
	}
	return true
}

// ParamUUID parses a path parameter as a uuid.
func ParamUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		Fail(c, apperrors.BadRequest("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

// Page reads limit and offset; bad values fall back to defaults downstream.
func Page(c *gin.Context) model.Pagination {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return model.Pagination{Limit: limit, Offset: offset}
}

// Outcome writes a booking or cancellation result. A rejected outcome keeps its body and
// takes the status of its reason.
func Outcome(c *gin.Context, ok bool, code string, data interface{}) {
	if ok {
		c.JSON(http.StatusOK, NewSuccessResponse(data))
		return
	}
	rejection := apperrors.Rejection(apperrors.Reason(code))
	c.JSON(rejection.StatusCode(), &Response{
		Status:  "error",
		Message: rejection.Message,
		Data:    data,
	})
}
