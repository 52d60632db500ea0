package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

type otpRepository struct {
	BaseRepository
}

func NewOTPRepository(base BaseRepository) repository.OTPRepository {
	return &otpRepository{base}
}

func (r *otpRepository) Create(ctx context.Context, code *model.OTPCode) error {
	if code.ID == uuid.Nil {
		code.ID = uuid.New()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE otp_codes SET used = true WHERE phone = $1 AND used = false`, code.Phone); err != nil {
			return fmt.Errorf("failed to retire otp codes: %w", err)
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO otp_codes (id, phone, code_hash, expires_at, attempts, used, created_at)
			VALUES (:id, :phone, :code_hash, :expires_at, :attempts, :used, :created_at)`, code)
		if err != nil {
			return fmt.Errorf("failed to create otp code: %w", err)
		}
		return nil
	})
}

func (r *otpRepository) Latest(ctx context.Context, phone string) (*model.OTPCode, error) {
	var code model.OTPCode
	err := r.db.GetContext(ctx, &code, `
		SELECT id, phone, code_hash, expires_at, attempts, used, created_at
		FROM otp_codes WHERE phone = $1
		ORDER BY created_at DESC LIMIT 1`, phone)
	if isNoRows(err) {
		return nil, apperrors.NotFound("otp code", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get otp code: %w", err)
	}
	return &code, nil
}

func (r *otpRepository) ConsumeAttempt(ctx context.Context, id uuid.UUID, max int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE otp_codes SET attempts = attempts + 1 WHERE id = $1 AND attempts < $2`, id, max)
	if err != nil {
		return false, fmt.Errorf("failed to count otp attempt: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count otp attempt: %w", err)
	}
	return n == 1, nil
}

func (r *otpRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE otp_codes SET used = true WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark otp code used: %w", err)
	}
	return nil
}

func (r *otpRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM otp_codes WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired otp codes: %w", err)
	}
	return result.RowsAffected()
}
