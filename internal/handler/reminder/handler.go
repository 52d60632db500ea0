package reminder

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/handler"
	"github.com/jwalitptl/clinic-booking/internal/model"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

// Dispatcher runs a reminder dispatch in the request.
type Dispatcher interface {
	Dispatch(ctx context.Context, opts model.DispatchOptions) (*model.DispatchReport, error)
}

// Enqueuer hands a dispatch to the job server.
type Enqueuer interface {
	EnqueueDispatch(ctx context.Context, opts model.DispatchOptions) (string, error)
}

type Handler struct {
	dispatcher Dispatcher
	enqueuer   Enqueuer
}

// NewHandler creates the handler; enqueuer may be nil when no job server is configured.
func NewHandler(dispatcher Dispatcher, enqueuer Enqueuer) *Handler {
	return &Handler{dispatcher: dispatcher, enqueuer: enqueuer}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/reminders/dispatch", h.Dispatch)
}

func queryBool(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

// Dispatch sends due reminders now. ?id= forces one reservation, ?dry=1 only renders, and
// ?async=1 queues the run on the job server.
func (h *Handler) Dispatch(c *gin.Context) {
	var opts model.DispatchOptions

	if raw := c.Query("id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			handler.Fail(c, apperrors.BadRequest("invalid id", err))
			return
		}
		opts.ForceID = &id
	}

	dry, err := queryBool(c, "dry")
	if err != nil {
		handler.Fail(c, apperrors.BadRequest("dry must be a boolean", err))
		return
	}
	opts.DryRun = dry

	async, err := queryBool(c, "async")
	if err != nil {
		handler.Fail(c, apperrors.BadRequest("async must be a boolean", err))
		return
	}

	if async {
		if h.enqueuer == nil {
			handler.Fail(c, apperrors.BadRequest("no job server configured", nil))
			return
		}
		taskID, err := h.enqueuer.EnqueueDispatch(c.Request.Context(), opts)
		if err != nil {
			handler.Fail(c, apperrors.Internal(err))
			return
		}
		handler.OK(c, http.StatusAccepted, gin.H{"task_id": taskID})
		return
	}

	report, err := h.dispatcher.Dispatch(c.Request.Context(), opts)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	handler.OK(c, http.StatusOK, report)
}
