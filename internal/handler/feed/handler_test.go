package feed

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
)

const channel = "clinic:changes"

// readEvent returns the data line of the next event with the given name.
func readEvent(t *testing.T, r *bufio.Reader, name string) string {
	t.Helper()
	var event string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:") && event == name:
			return strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func TestStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	broker := messaging.NewInMemoryBroker()
	defer broker.Close()

	r := gin.New()
	NewHandler(broker, channel, time.Hour, logger.Nop()).RegisterRoutes(r.Group("/api/v1"))
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/changes", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body := bufio.NewReader(resp.Body)
	assert.Equal(t, channel, readEvent(t, body, "ready"))

	notice := model.ChangeNotice{Type: model.EventReservationBooked, SlotID: "2025-06-04T10:00"}
	require.NoError(t, broker.Publish(ctx, channel, notice))

	data := readEvent(t, body, "change")
	assert.Contains(t, data, `"slot_id":"2025-06-04T10:00"`)
	assert.Contains(t, data, `"type":"reservation.booked"`)
}

type brokenBroker struct {
	messaging.Broker
}

func (brokenBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, messaging.ErrBrokerClosed
}

func TestStream_Unavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(brokenBroker{}, channel, 0, logger.Nop()).RegisterRoutes(r.Group("/api/v1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/changes", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
