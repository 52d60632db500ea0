package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/phone"
	"github.com/jwalitptl/clinic-booking/pkg/security"
)

type UserServicer interface {
	CreateUser(ctx context.Context, req *model.CreateUserRequest) (*model.Profile, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	UpdateUser(ctx context.Context, id uuid.UUID, req *model.UpdateUserRequest) (*model.Profile, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context, filters *model.ProfileFilters) ([]*model.Profile, int, error)
}

type Service struct {
	repo   repository.ProfileRepository
	hasher security.PasswordHasher
	region string
	logger *logger.Logger
}

func NewService(repo repository.ProfileRepository, hasher security.PasswordHasher, region string, logger *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		region: region,
		logger: logger,
	}
}

func (s *Service) CreateUser(ctx context.Context, req *model.CreateUserRequest) (*model.Profile, error) {
	number, err := phone.Normalize(req.Phone, s.region)
	if err != nil {
		return nil, apperrors.BadRequest("invalid phone number", err)
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, passwordError(err)
	}

	role := req.Role
	if role == "" {
		role = model.RoleUser
	}
	profile := &model.Profile{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        number,
		Role:         role,
		PasswordHash: hash,
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		profile.Email = &email
	}

	if err := s.repo.Create(ctx, profile); err != nil {
		return nil, wrap("create", err)
	}
	s.logger.Info("User created", "user_id", profile.ID.String(), "role", string(role))
	return profile, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	profile, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, wrap("get", err)
	}
	return profile, nil
}

// UpdateUser applies the non-nil fields of req.
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, req *model.UpdateUserRequest) (*model.Profile, error) {
	profile, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, wrap("get", err)
	}

	if req.FirstName != nil {
		profile.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		profile.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Phone != nil {
		number, err := phone.Normalize(*req.Phone, s.region)
		if err != nil {
			return nil, apperrors.BadRequest("invalid phone number", err)
		}
		profile.Phone = number
	}
	if req.Email != nil {
		if email := strings.TrimSpace(*req.Email); email != "" {
			profile.Email = &email
		} else {
			profile.Email = nil
		}
	}
	if req.Role != nil {
		profile.Role = *req.Role
	}
	if req.Password != nil {
		hash, err := s.hasher.Hash(*req.Password)
		if err != nil {
			return nil, passwordError(err)
		}
		profile.PasswordHash = hash
	}

	if err := s.repo.Update(ctx, profile); err != nil {
		return nil, wrap("update", err)
	}
	s.logger.Info("User updated", "user_id", id.String())
	return profile, nil
}

// DeleteUser removes the profile and its reservation history. Profiles with an active
// reservation must be cancelled first.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return wrap("delete", err)
	}
	s.logger.Info("User deleted", "user_id", id.String())
	return nil
}

func (s *Service) ListUsers(ctx context.Context, filters *model.ProfileFilters) ([]*model.Profile, int, error) {
	if filters == nil {
		filters = &model.ProfileFilters{}
	}
	filters.Query = searchTerm(filters.Query)
	users, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, wrap("list", err)
	}
	return users, total, nil
}

// searchTerm turns a phone-like query into digits without the trunk or international
// prefix, so "0555 111" matches "+90555111...".
func searchTerm(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return q
	}
	digits := strings.Builder{}
	for _, r := range q {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case r == ' ' || r == '+' || r == '-' || r == '(' || r == ')':
		default:
			return q
		}
	}
	return strings.TrimLeft(digits.String(), "0")
}

func passwordError(err error) error {
	if errors.Is(err, security.ErrPasswordTooShort) {
		return apperrors.BadRequest(fmt.Sprintf("password must be at least %d characters", security.MinPasswordLen), err)
	}
	return apperrors.Internal(err)
}

func wrap(op string, err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return fmt.Errorf("failed to %s user: %w", op, err)
}
