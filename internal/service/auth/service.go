package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/internal/service/notification"
	"github.com/jwalitptl/clinic-booking/pkg/auth"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
	"github.com/jwalitptl/clinic-booking/pkg/phone"
	"github.com/jwalitptl/clinic-booking/pkg/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

const codeDigits = 6

// Settings tune the OTP flow.
type Settings struct {
	CodeTTL     time.Duration
	MaxAttempts int
	// Cooldown is the minimum gap between two codes to the same phone.
	Cooldown   time.Duration
	Region     string
	ClinicName string
}

type Service struct {
	profiles  repository.ProfileRepository
	otp       repository.OTPRepository
	sender    notification.Sender
	jwtSvc    auth.JWTService
	passwords security.PasswordHasher
	codes     security.PasswordHasher
	cooldown  *cache.Cache
	settings  Settings
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewService(profiles repository.ProfileRepository, otp repository.OTPRepository, sender notification.Sender,
	jwtSvc auth.JWTService, passwords, codes security.PasswordHasher, settings Settings,
	logger *logger.Logger, metrics *metrics.Metrics) *Service {
	if settings.CodeTTL <= 0 {
		settings.CodeTTL = 5 * time.Minute
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 5
	}
	return &Service{
		profiles:  profiles,
		otp:       otp,
		sender:    sender,
		jwtSvc:    jwtSvc,
		passwords: passwords,
		codes:     codes,
		cooldown:  cache.New(settings.Cooldown, 10*time.Minute),
		settings:  settings,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (s *Service) normalize(raw string) (string, error) {
	number, err := phone.Normalize(raw, s.settings.Region)
	if err != nil {
		return "", apperrors.BadRequest("invalid phone number", err)
	}
	return number, nil
}

func (s *Service) countOTP(operation, result string) {
	s.metrics.OTPRequests.WithLabelValues(operation, result).Inc()
}

// SendOTP stores a fresh code for the phone and delivers it over the configured channel.
func (s *Service) SendOTP(ctx context.Context, rawPhone string) error {
	number, err := s.normalize(rawPhone)
	if err != nil {
		return err
	}
	if s.settings.Cooldown > 0 {
		if err := s.cooldown.Add(number, struct{}{}, s.settings.Cooldown); err != nil {
			s.countOTP("send", "throttled")
			return apperrors.TooManyRequests("please wait before requesting another code")
		}
	}

	code, err := generateCode(codeDigits)
	if err != nil {
		return apperrors.Internal(err)
	}
	hash, err := s.codes.Hash(code)
	if err != nil {
		return apperrors.Internal(err)
	}

	now := s.now()
	otp := &model.OTPCode{
		Phone:     number,
		CodeHash:  hash,
		ExpiresAt: now.Add(s.settings.CodeTTL),
		CreatedAt: now,
	}
	if err := s.otp.Create(ctx, otp); err != nil {
		s.cooldown.Delete(number)
		return fmt.Errorf("failed to store otp code: %w", err)
	}

	body := fmt.Sprintf("Your %s verification code is %s. It expires in %d minutes.",
		s.settings.ClinicName, code, int(s.settings.CodeTTL.Minutes()))
	if _, err := s.sender.Send(ctx, model.Message{To: number, Subject: "Verification code", Body: body}); err != nil {
		s.cooldown.Delete(number)
		s.countOTP("send", "error")
		s.logger.Error(err, "Failed to send otp", "phone", number)
		return apperrors.Internal(fmt.Errorf("failed to send verification code: %w", err))
	}

	s.countOTP("send", "ok")
	s.logger.Info("OTP sent", "phone", number)
	return nil
}

// VerifyOTP checks the latest code of the phone and registers the user. A phone that is
// already registered gets existing=true and no new account.
func (s *Service) VerifyOTP(ctx context.Context, req *model.VerifyOTPRequest) (*model.VerifyOTPResponse, error) {
	number, err := s.normalize(req.Phone)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < security.MinPasswordLen {
		return nil, apperrors.BadRequest(fmt.Sprintf("password must be at least %d characters", security.MinPasswordLen), nil)
	}

	otp, err := s.otp.Latest(ctx, number)
	if err != nil {
		if appErr, ok := apperrors.As(err); ok && appErr.Code == apperrors.ErrNotFound {
			s.countOTP("verify", "missing")
			return nil, apperrors.BadRequest("no verification code requested for this phone", nil)
		}
		return nil, fmt.Errorf("failed to load otp code: %w", err)
	}

	switch {
	case otp.Used:
		s.countOTP("verify", "used")
		return nil, apperrors.BadRequest("verification code already used", nil)
	case !s.now().Before(otp.ExpiresAt):
		s.countOTP("verify", "expired")
		return nil, apperrors.BadRequest("verification code expired", nil)
	}

	// the attempt is spent before the comparison so concurrent guesses cannot exceed the cap
	allowed, err := s.otp.ConsumeAttempt(ctx, otp.ID, s.settings.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempt: %w", err)
	}
	if !allowed {
		s.countOTP("verify", "locked")
		return nil, apperrors.TooManyRequests("too many attempts, request a new code")
	}

	if err := s.codes.Compare(otp.CodeHash, req.Code); err != nil {
		s.countOTP("verify", "mismatch")
		return nil, apperrors.BadRequest("invalid verification code", nil)
	}
	if err := s.otp.MarkUsed(ctx, otp.ID); err != nil {
		return nil, fmt.Errorf("failed to mark otp used: %w", err)
	}

	existing, err := s.profiles.GetByPhone(ctx, number)
	if err == nil {
		s.countOTP("verify", "existing")
		return &model.VerifyOTPResponse{OK: true, Existing: true, UserID: existing.ID}, nil
	}
	if appErr, ok := apperrors.As(err); !ok || appErr.Code != apperrors.ErrNotFound {
		return nil, fmt.Errorf("failed to look up profile: %w", err)
	}

	hash, err := s.passwords.Hash(req.Password)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	profile := &model.Profile{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        number,
		Role:         model.RoleUser,
		PasswordHash: hash,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	s.countOTP("verify", "registered")
	s.logger.Info("User registered", "user_id", profile.ID.String())
	return &model.VerifyOTPResponse{OK: true, UserID: profile.ID}, nil
}

// CheckPhone reports whether an account exists for the phone.
func (s *Service) CheckPhone(ctx context.Context, rawPhone string) (bool, error) {
	number, err := s.normalize(rawPhone)
	if err != nil {
		return false, err
	}
	_, err = s.profiles.GetByPhone(ctx, number)
	if err == nil {
		return true, nil
	}
	if appErr, ok := apperrors.As(err); ok && appErr.Code == apperrors.ErrNotFound {
		return false, nil
	}
	return false, fmt.Errorf("failed to look up phone: %w", err)
}

func (s *Service) Login(ctx context.Context, rawPhone, password string) (*model.TokenResponse, error) {
	number, err := phone.Normalize(rawPhone, s.settings.Region)
	if err != nil {
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}
	profile, err := s.profiles.GetByPhone(ctx, number)
	if err != nil {
		if appErr, ok := apperrors.As(err); ok && appErr.Code == apperrors.ErrNotFound {
			return nil, apperrors.Unauthorized(ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile.PasswordHash == "" || s.passwords.Compare(profile.PasswordHash, password) != nil {
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}

	token, expiresAt, err := s.jwtSvc.GenerateAccessToken(profile)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("%w: %v", ErrTokenGeneration, err))
	}
	s.logger.Info("User logged in", "user_id", profile.ID.String())
	return &model.TokenResponse{AccessToken: token, ExpiresAt: expiresAt, Role: profile.Role}, nil
}

func (s *Service) ValidateToken(_ context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return claims, nil
}

// generateCode returns n random decimal digits.
func generateCode(n int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", n, v), nil
}
