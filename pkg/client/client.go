// Package client is the Go client of the booking API. Booking and cancellation results that
// the transport leaves ambiguous are settled by re-reading server state.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

// APIError is a non-2xx response that did not carry a domain outcome.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// ErrUnknownOutcome means the request may or may not have taken effect and re-reading did
// not settle it.
var ErrUnknownOutcome = errors.New("outcome unknown")

type Client struct {
	http *HttpClient
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http.HTTPClient = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.http.Token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{http: NewHttpClient(baseURL + "/api/v1")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token, e.g. after Login.
func (c *Client) SetToken(token string) {
	c.http.Token = token
}

func apiError(resp *Response) error {
	env, err := resp.decodeData(nil)
	if err != nil || env == nil {
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return &APIError{StatusCode: resp.StatusCode, Reason: env.Reason, Message: env.Message}
}

func ok(resp *Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ambiguous reports whether a failure may hide a committed change.
func ambiguous(resp *Response, err error) bool {
	if err != nil {
		return true
	}
	return resp.StatusCode >= http.StatusInternalServerError
}

func (c *Client) Login(ctx context.Context, phone, password string) (*model.TokenResponse, error) {
	resp, err := c.http.POST(ctx, "/auth/login", model.LoginRequest{Phone: phone, Password: password})
	if err != nil {
		return nil, err
	}
	if !ok(resp) {
		return nil, apiError(resp)
	}
	var tokens model.TokenResponse
	if _, err := resp.decodeData(&tokens); err != nil {
		return nil, err
	}
	c.SetToken(tokens.AccessToken)
	return &tokens, nil
}

func (c *Client) Availability(ctx context.Context, from, to string) ([]model.SlotAvailability, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	path := "/slots/availability"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.http.GET(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok(resp) {
		return nil, apiError(resp)
	}
	var grid struct {
		Slots []model.SlotAvailability `json:"slots"`
	}
	if _, err := resp.decodeData(&grid); err != nil {
		return nil, err
	}
	return grid.Slots, nil
}

// ReservedSlots returns which of ids carry an active reservation.
func (c *Client) ReservedSlots(ctx context.Context, ids []string) ([]string, error) {
	resp, err := c.http.POST(ctx, "/slots/reserved", model.ReservedSlotsRequest{SlotIDs: ids})
	if err != nil {
		return nil, err
	}
	if !ok(resp) {
		return nil, apiError(resp)
	}
	var body struct {
		SlotIDs []string `json:"slot_ids"`
	}
	if _, err := resp.decodeData(&body); err != nil {
		return nil, err
	}
	return body.SlotIDs, nil
}

// MyReservations lists the caller's reservations; scope is "upcoming" or "history".
func (c *Client) MyReservations(ctx context.Context, scope string) ([]*model.ReservationView, error) {
	resp, err := c.http.GET(ctx, "/me/reservations?scope="+url.QueryEscape(scope))
	if err != nil {
		return nil, err
	}
	if !ok(resp) {
		return nil, apiError(resp)
	}
	var list []*model.ReservationView
	if _, err := resp.decodeData(&list); err != nil {
		return nil, err
	}
	return list, nil
}

// Book reserves slotID. Any decoded outcome, success or rejection, is returned as the server
// reported it. A transport error or a 5xx without an outcome is settled by re-reading: an own
// active reservation on the slot is a success, a slot reserved by someone else is SlotTaken,
// anything else returns the original error.
func (c *Client) Book(ctx context.Context, slotID string) (*model.BookingOutcome, error) {
	resp, err := c.http.POST(ctx, "/bookings", model.BookRequest{SlotID: slotID})
	if err == nil {
		var outcome model.BookingOutcome
		_, decodeErr := resp.decodeData(&outcome)
		if decodeErr == nil && (outcome.OK || outcome.Code != "") {
			return &outcome, nil
		}
		if !ambiguous(resp, nil) {
			if ok(resp) {
				if decodeErr == nil {
					decodeErr = errors.New("response carried no booking outcome")
				}
				return nil, decodeErr
			}
			return nil, apiError(resp)
		}
		err = apiError(resp)
	}
	return c.reconcileBooking(ctx, slotID, err)
}

func (c *Client) reconcileBooking(ctx context.Context, slotID string, cause error) (*model.BookingOutcome, error) {
	key, err := model.ParseSlotID(slotID)
	if err != nil {
		return nil, cause
	}
	slotID = key.ID()

	mine, err := c.MyReservations(ctx, "upcoming")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownOutcome, cause)
	}
	for _, r := range mine {
		if r.SlotID == slotID && r.Status.IsActive() {
			id := r.ID
			return &model.BookingOutcome{OK: true, ReservationID: &id, SlotID: slotID}, nil
		}
	}

	taken, err := c.ReservedSlots(ctx, []string{slotID})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownOutcome, cause)
	}
	if slices.Contains(taken, slotID) {
		reason := apperrors.ReasonSlotTaken
		return &model.BookingOutcome{OK: false, SlotID: slotID, Code: string(reason), Message: reason.Message()}, nil
	}
	return nil, cause
}

// Cancel cancels a reservation. When the response is lost the reservation is looked up; if it
// is already cancelled the call counts as done, though the refund is then not known.
func (c *Client) Cancel(ctx context.Context, reservationID uuid.UUID) (*model.CancelOutcome, error) {
	resp, err := c.http.POST(ctx, "/bookings/"+reservationID.String()+"/cancel", nil)

	var outcome model.CancelOutcome
	if err == nil {
		if _, decodeErr := resp.decodeData(&outcome); decodeErr == nil && (outcome.OK || outcome.Code != "") {
			return &outcome, nil
		}
		if !ambiguous(resp, nil) {
			return nil, apiError(resp)
		}
		err = apiError(resp)
	}

	history, herr := c.MyReservations(ctx, "history")
	if herr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownOutcome, err)
	}
	for _, r := range history {
		if r.ID == reservationID && r.Status == model.ReservationStatusCancelled {
			return &model.CancelOutcome{OK: true, Message: "reservation cancelled"}, nil
		}
	}
	return nil, err
}
