package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

const profileColumns = `id, first_name, last_name, phone, email, role, password_hash, credits, credits_expires_at, created_at, updated_at`

type profileRepository struct {
	BaseRepository
}

func NewProfileRepository(base BaseRepository) repository.ProfileRepository {
	return &profileRepository{base}
}

func (r *profileRepository) Create(ctx context.Context, p *model.Profile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (:id, :first_name, :last_name, :phone, :email, :role, :password_hash, :credits,
		        :credits_expires_at, :created_at, :updated_at)`, p)
	if isUniqueViolation(err) {
		return apperrors.Conflict("phone number already registered", err)
	}
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (r *profileRepository) get(ctx context.Context, where string, arg interface{}) (*model.Profile, error) {
	var p model.Profile
	err := r.db.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM profiles WHERE `+where, arg)
	if isNoRows(err) {
		return nil, apperrors.NotFound("profile", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

func (r *profileRepository) Get(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *profileRepository) GetByPhone(ctx context.Context, phone string) (*model.Profile, error) {
	return r.get(ctx, "phone = $1", phone)
}

// Update writes the editable fields; credits only change through SetCredits.
func (r *profileRepository) Update(ctx context.Context, p *model.Profile) error {
	p.UpdatedAt = time.Now()
	result, err := r.db.NamedExecContext(ctx, `
		UPDATE profiles
		SET first_name = :first_name, last_name = :last_name, phone = :phone, email = :email,
		    role = :role, password_hash = :password_hash, updated_at = :updated_at
		WHERE id = :id`, p)
	if isUniqueViolation(err) {
		return apperrors.Conflict("phone number already registered", err)
	}
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NotFound("profile", nil)
	}
	return nil
}

// Delete refuses while the profile holds an active reservation. The profile row lock
// serializes the check with Book, Cancel and SetCredits.
func (r *profileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var locked int
		err := tx.GetContext(ctx, &locked, `SELECT 1 FROM profiles WHERE id = $1 FOR UPDATE`, id)
		if isNoRows(err) {
			return apperrors.NotFound("profile", err)
		}
		if err != nil {
			return fmt.Errorf("failed to lock profile: %w", err)
		}

		var active bool
		err = tx.GetContext(ctx, &active, `
			SELECT EXISTS (SELECT 1 FROM reservations WHERE patient_id = $1 AND status = ANY($2))`,
			id, activeStatuses())
		if err != nil {
			return fmt.Errorf("failed to check reservations: %w", err)
		}
		if active {
			return apperrors.Conflict("profile has active reservations", nil)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete profile: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return apperrors.NotFound("profile", nil)
		}
		return nil
	})
}

func (r *profileRepository) List(ctx context.Context, filters *model.ProfileFilters) ([]*model.Profile, int, error) {
	if filters == nil {
		filters = &model.ProfileFilters{}
	}

	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q := strings.TrimSpace(filters.Query); q != "" {
		like := arg("%" + q + "%")
		conds = append(conds, fmt.Sprintf("(first_name ILIKE %[1]s OR last_name ILIKE %[1]s OR phone LIKE %[1]s)", like))
	}
	if filters.Role != "" {
		conds = append(conds, "role = "+arg(filters.Role))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT count(*) FROM profiles`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count profiles: %w", err)
	}

	page := filters.Pagination.Normalize(50, 500)
	query := `SELECT ` + profileColumns + ` FROM profiles` + where +
		` ORDER BY first_name, last_name, created_at LIMIT ` + arg(page.Limit) + ` OFFSET ` + arg(page.Offset)

	profiles := []*model.Profile{}
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, total, nil
}

func (r *profileRepository) SetCredits(ctx context.Context, id uuid.UUID, credits int, expiresAt *time.Time) (*model.Profile, error) {
	var p model.Profile
	err := r.db.GetContext(ctx, &p, `
		UPDATE profiles SET credits = $2, credits_expires_at = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+profileColumns, id, credits, expiresAt)
	if isNoRows(err) {
		return nil, apperrors.NotFound("profile", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set credits: %w", err)
	}
	return &p, nil
}
