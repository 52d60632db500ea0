package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

type otpRepository struct {
	*db
}

func (r *otpRepository) Create(ctx context.Context, code *model.OTPCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code.ID == uuid.Nil {
		code.ID = uuid.New()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}
	for _, c := range r.otp {
		if c.Phone == code.Phone {
			c.Used = true
		}
	}
	c := *code
	r.otp = append(r.otp, &c)
	return nil
}

func (r *otpRepository) Latest(ctx context.Context, phone string) (*model.OTPCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.otp) - 1; i >= 0; i-- {
		if r.otp[i].Phone == phone {
			c := *r.otp[i]
			return &c, nil
		}
	}
	return nil, apperrors.NotFound("otp code", nil)
}

func (r *otpRepository) find(id uuid.UUID) *model.OTPCode {
	for _, c := range r.otp {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (r *otpRepository) ConsumeAttempt(ctx context.Context, id uuid.UUID, max int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.find(id)
	if c == nil || c.Attempts >= max {
		return false, nil
	}
	c.Attempts++
	return true, nil
}

func (r *otpRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c := r.find(id); c != nil {
		c.Used = true
	}
	return nil
}

func (r *otpRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.otp[:0]
	var n int64
	for _, c := range r.otp {
		if c.ExpiresAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	r.otp = kept
	return n, nil
}
