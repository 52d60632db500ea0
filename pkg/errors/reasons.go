package errors

// Reason identifies a booking or cancellation rejection.
type Reason string

const (
	ReasonSlotClosed         Reason = "slot_closed"
	ReasonSlotTaken          Reason = "slot_taken"
	ReasonTooLate            Reason = "too_late"
	ReasonOutOfWindow        Reason = "out_of_window"
	ReasonInsufficientCredit Reason = "insufficient_credit"
	ReasonDensityLimit       Reason = "density_limit_exceeded"
	ReasonNotFound           Reason = "not_found"
	ReasonNotCancellable     Reason = "not_cancellable"
)

var reasonMessages = map[Reason]string{
	ReasonSlotClosed:         "this slot is not open for booking",
	ReasonSlotTaken:          "this slot has already been booked",
	ReasonTooLate:            "bookings close 12 hours before the appointment",
	ReasonOutOfWindow:        "this slot is beyond the booking horizon",
	ReasonInsufficientCredit: "no usable credit left",
	ReasonDensityLimit:       "daily or weekly appointment limit reached",
	ReasonNotFound:           "reservation not found",
	ReasonNotCancellable:     "reservation can no longer be cancelled",
}

var reasonCodes = map[Reason]ErrorCode{
	ReasonSlotClosed:         ErrUnprocessable,
	ReasonSlotTaken:          ErrConflict,
	ReasonTooLate:            ErrUnprocessable,
	ReasonOutOfWindow:        ErrUnprocessable,
	ReasonInsufficientCredit: ErrUnprocessable,
	ReasonDensityLimit:       ErrUnprocessable,
	ReasonNotFound:           ErrNotFound,
	ReasonNotCancellable:     ErrConflict,
}

// Message returns the user facing text for the reason.
func (r Reason) Message() string {
	if m, ok := reasonMessages[r]; ok {
		return m
	}
	return string(r)
}

// Rejection builds the domain error for a reason.
func Rejection(r Reason) *AppError {
	code, ok := reasonCodes[r]
	if !ok {
		code = ErrBadRequest
	}
	return &AppError{
		Code:    code,
		Reason:  r,
		Message: r.Message(),
	}
}

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	appErr, ok := As(err)
	if !ok || appErr.Reason == "" {
		return "", false
	}
	return appErr.Reason, true
}

var (
	ErrSlotClosed         = Rejection(ReasonSlotClosed)
	ErrSlotTaken          = Rejection(ReasonSlotTaken)
	ErrTooLate            = Rejection(ReasonTooLate)
	ErrOutOfWindow        = Rejection(ReasonOutOfWindow)
	ErrInsufficientCredit = Rejection(ReasonInsufficientCredit)
	ErrDensityLimit       = Rejection(ReasonDensityLimit)
	ErrReservationMissing = Rejection(ReasonNotFound)
	ErrNotCancellable     = Rejection(ReasonNotCancellable)
)
