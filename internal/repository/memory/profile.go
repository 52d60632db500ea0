package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

type profileRepository struct {
	*db
}

func (r *profileRepository) phoneTaken(phone string, except uuid.UUID) bool {
	for _, p := range r.profiles {
		if p.Phone == phone && p.ID != except {
			return true
		}
	}
	return false
}

func (r *profileRepository) Create(ctx context.Context, p *model.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if r.phoneTaken(p.Phone, p.ID) {
		return apperrors.Conflict("phone number already registered", nil)
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.profiles[p.ID] = copyProfile(p)
	return nil
}

func (r *profileRepository) Get(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, apperrors.NotFound("profile", nil)
	}
	return copyProfile(p), nil
}

func (r *profileRepository) GetByPhone(ctx context.Context, phone string) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.profiles {
		if p.Phone == phone {
			return copyProfile(p), nil
		}
	}
	return nil, apperrors.NotFound("profile", nil)
}

func (r *profileRepository) Update(ctx context.Context, p *model.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.profiles[p.ID]
	if !ok {
		return apperrors.NotFound("profile", nil)
	}
	if r.phoneTaken(p.Phone, p.ID) {
		return apperrors.Conflict("phone number already registered", nil)
	}

	p.UpdatedAt = time.Now()
	current.FirstName = p.FirstName
	current.LastName = p.LastName
	current.Phone = p.Phone
	current.Email = p.Email
	current.Role = p.Role
	current.PasswordHash = p.PasswordHash
	current.UpdatedAt = p.UpdatedAt
	return nil
}

func (r *profileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[id]; !ok {
		return apperrors.NotFound("profile", nil)
	}
	for _, res := range r.reservations {
		if res.PatientID == id && res.Status.IsActive() {
			return apperrors.Conflict("profile has active reservations", nil)
		}
	}
	for rid, res := range r.reservations {
		if res.PatientID == id {
			delete(r.reservations, rid)
		}
	}
	delete(r.profiles, id)
	return nil
}

func (r *profileRepository) List(ctx context.Context, filters *model.ProfileFilters) ([]*model.Profile, int, error) {
	if filters == nil {
		filters = &model.ProfileFilters{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(filters.Query))
	out := []*model.Profile{}
	for _, p := range r.profiles {
		if filters.Role != "" && p.Role != filters.Role {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(p.FirstName), q) &&
			!strings.Contains(strings.ToLower(p.LastName), q) &&
			!strings.Contains(p.Phone, q) {
			continue
		}
		out = append(out, copyProfile(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	total := len(out)
	page := filters.Pagination.Normalize(50, 500)
	if page.Offset >= total {
		return []*model.Profile{}, total, nil
	}
	end := page.Offset + page.Limit
	if end > total {
		end = total
	}
	return out[page.Offset:end], total, nil
}

func (r *profileRepository) SetCredits(ctx context.Context, id uuid.UUID, credits int, expiresAt *time.Time) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, apperrors.NotFound("profile", nil)
	}
	p.Credits = credits
	p.CreditsExpiresAt = nil
	if expiresAt != nil {
		exp := *expiresAt
		p.CreditsExpiresAt = &exp
	}
	p.UpdatedAt = time.Now()
	return copyProfile(p), nil
}
