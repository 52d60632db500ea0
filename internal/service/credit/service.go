package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

type Service struct {
	profiles repository.ProfileRepository
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(profiles repository.ProfileRepository, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	return &Service{
		profiles: profiles,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// SetCredits overwrites the balance. days > 0 opens a window of that many days from now;
// days == 0 clears both the balance and the window.
func (s *Service) SetCredits(ctx context.Context, patientID uuid.UUID, amount, days int) (*model.Profile, error) {
	if amount < 0 || days < 0 {
		return nil, apperrors.BadRequest("amount and days must not be negative", nil)
	}

	var expiresAt *time.Time
	if days == 0 {
		amount = 0
	} else {
		exp := s.now().Add(time.Duration(days) * 24 * time.Hour)
		expiresAt = &exp
	}

	profile, err := s.profiles.SetCredits(ctx, patientID, amount, expiresAt)
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("failed to set credits: %w", err)
	}

	s.metrics.CreditGrants.Inc()
	s.logger.Info("Credits set", "patient_id", patientID.String(), "credits", amount, "days", days)
	return profile, nil
}

// Balance returns the stored balance and the part of it usable now.
func (s *Service) Balance(ctx context.Context, patientID uuid.UUID) (*model.ProfileView, error) {
	profile, err := s.profiles.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return &model.ProfileView{
		Profile:       profile,
		UsableCredits: profile.Balance().Usable(s.now()),
	}, nil
}
