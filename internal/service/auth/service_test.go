package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/internal/repository/memory"
	"github.com/jwalitptl/clinic-booking/pkg/auth"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
	"github.com/jwalitptl/clinic-booking/pkg/security"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg model.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

type fixture struct {
	svc    *Service
	store  *repository.Store
	sender *mockSender
	now    time.Time
	sent   []string
}

func newFixture(t *testing.T, cooldown time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		sender: new(mockSender),
		now:    time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC),
	}
	f.sender.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		msg := args.Get(1).(model.Message)
		if m := codePattern.FindStringSubmatch(msg.Body); m != nil {
			f.sent = append(f.sent, m[1])
		}
	}).Return("SM1", nil).Maybe()

	f.svc = NewService(
		f.store.Profiles, f.store.OTP, f.sender,
		auth.NewJWTService("test-secret", "clinic-test", time.Hour),
		security.NewBcryptHasher(bcrypt.MinCost), security.NewCodeHasher(bcrypt.MinCost),
		Settings{CodeTTL: 5 * time.Minute, MaxAttempts: 5, Cooldown: cooldown, Region: "TR", ClinicName: "Test Clinic"},
		logger.Nop(), metrics.NewWithRegistry("test", "auth", prometheus.NewRegistry()),
	)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.sent, "no code was sent")
	return f.sent[len(f.sent)-1]
}

func appCode(t *testing.T, err error) apperrors.ErrorCode {
	t.Helper()
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected an AppError, got %v", err)
	return appErr.Code
}

func TestRegisterWithOTP(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	require.NoError(t, f.svc.SendOTP(ctx, "0555 111 22 33"))
	code := f.lastCode(t)
	assert.Len(t, code, 6)

	resp, err := f.svc.VerifyOTP(ctx, &model.VerifyOTPRequest{
		Phone: "+905551112233", Code: code, Password: "secret1", FirstName: "Ayse",
	})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.False(t, resp.Existing)

	p, err := f.store.Profiles.Get(ctx, resp.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, p.Role)
	assert.Equal(t, 0, p.Credits)
	assert.Nil(t, p.CreditsExpiresAt)

	exists, err := f.svc.CheckPhone(ctx, "05551112233")
	require.NoError(t, err)
	assert.True(t, exists)

	tokens, err := f.svc.Login(ctx, "+905551112233", "secret1")
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, tokens.Role)

	claims, err := f.svc.ValidateToken(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, p.ID, claims.UserID)

	// the code is single use
	_, err = f.svc.VerifyOTP(ctx, &model.VerifyOTPRequest{Phone: "+905551112233", Code: code, Password: "secret1"})
	assert.Equal(t, apperrors.ErrBadRequest, appCode(t, err))
}

func TestVerifyOTP_ExistingPhone(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	existing := &model.Profile{Phone: "+905551112233", Role: model.RoleUser}
	require.NoError(t, f.store.Profiles.Create(ctx, existing))

	require.NoError(t, f.svc.SendOTP(ctx, "+905551112233"))
	resp, err := f.svc.VerifyOTP(ctx, &model.VerifyOTPRequest{Phone: "+905551112233", Code: f.lastCode(t), Password: "secret1"})
	require.NoError(t, err)
	assert.True(t, resp.Existing)
	assert.Equal(t, existing.ID, resp.UserID)

	_, total, err := f.store.Profiles.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestVerifyOTP_Failures(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	req := func(code string) *model.VerifyOTPRequest {
		return &model.VerifyOTPRequest{Phone: "+905551112233", Code: code, Password: "secret1"}
	}

	_, err := f.svc.VerifyOTP(ctx, req("123456"))
	assert.Equal(t, apperrors.ErrBadRequest, appCode(t, err), "nothing requested")

	require.NoError(t, f.svc.SendOTP(ctx, "+905551112233"))
	good := f.lastCode(t)
	wrong := "000000"
	if good == wrong {
		wrong = "111111"
	}

	for i := 0; i < 5; i++ {
		_, err = f.svc.VerifyOTP(ctx, req(wrong))
		assert.Equal(t, apperrors.ErrBadRequest, appCode(t, err))
	}
	_, err = f.svc.VerifyOTP(ctx, req(good))
	assert.Equal(t, apperrors.ErrTooManyRequests, appCode(t, err), "locked after five misses")

	require.NoError(t, f.svc.SendOTP(ctx, "+905551112233"))
	fresh := f.lastCode(t)
	f.now = f.now.Add(5 * time.Minute)
	_, err = f.svc.VerifyOTP(ctx, req(fresh))
	assert.Equal(t, apperrors.ErrBadRequest, appCode(t, err), "expired")

	_, err = f.svc.VerifyOTP(ctx, &model.VerifyOTPRequest{Phone: "+905551112233", Code: fresh, Password: "abc"})
	assert.Equal(t, apperrors.ErrBadRequest, appCode(t, err), "short password")
}

// staleOTP serves the code as it was first read, like concurrent requests that all
// loaded it before any attempt was counted.
type staleOTP struct {
	repository.OTPRepository
	first *model.OTPCode
}

func (s *staleOTP) Latest(ctx context.Context, phone string) (*model.OTPCode, error) {
	if s.first == nil {
		code, err := s.OTPRepository.Latest(ctx, phone)
		if err != nil {
			return nil, err
		}
		s.first = code
	}
	c := *s.first
	return &c, nil
}

func TestVerifyOTP_AttemptCapHoldsOnStaleReads(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.svc.otp = &staleOTP{OTPRepository: f.store.OTP}

	require.NoError(t, f.svc.SendOTP(ctx, "+905551112233"))
	good := f.lastCode(t)
	wrong := "000000"
	if good == wrong {
		wrong = "111111"
	}

	mismatches := 0
	for i := 0; i < 8; i++ {
		_, err := f.svc.VerifyOTP(ctx, &model.VerifyOTPRequest{Phone: "+905551112233", Code: wrong, Password: "secret1"})
		if appCode(t, err) == apperrors.ErrBadRequest {
			mismatches++
		} else {
			assert.Equal(t, apperrors.ErrTooManyRequests, appCode(t, err))
		}
	}
	assert.Equal(t, 5, mismatches, "only five guesses are compared")

	_, err := f.svc.VerifyOTP(ctx, &model.VerifyOTPRequest{Phone: "+905551112233", Code: good, Password: "secret1"})
	assert.Equal(t, apperrors.ErrTooManyRequests, appCode(t, err))
}

func TestSendOTP_Cooldown(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, f.svc.SendOTP(ctx, "+905551112233"))
	err := f.svc.SendOTP(ctx, "0555 111 22 33")
	assert.Equal(t, apperrors.ErrTooManyRequests, appCode(t, err))

	require.NoError(t, f.svc.SendOTP(ctx, "+905324445566"), "other phones are unaffected")
}

func TestSendOTP_DeliveryFailure(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.sender.ExpectedCalls = nil
	f.sender.On("Send", mock.Anything, mock.Anything).Return("", errors.New("twilio down")).Once()
	f.sender.On("Send", mock.Anything, mock.Anything).Return("SM2", nil).Once()

	err := f.svc.SendOTP(context.Background(), "+905551112233")
	assert.Equal(t, apperrors.ErrInternal, appCode(t, err))

	assert.NoError(t, f.svc.SendOTP(context.Background(), "+905551112233"), "a failed send does not start the cooldown")
	f.sender.AssertExpectations(t)
}

func TestSendOTP_InvalidPhone(t *testing.T) {
	f := newFixture(t, 0)
	err := f.svc.SendOTP(context.Background(), "abc")
	assert.Equal(t, apperrors.ErrBadRequest, appCode(t, err))
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	hash, err := security.NewBcryptHasher(bcrypt.MinCost).Hash("secret1")
	require.NoError(t, err)
	require.NoError(t, f.store.Profiles.Create(ctx, &model.Profile{Phone: "+905551112233", Role: model.RoleAdmin, PasswordHash: hash}))

	for _, tc := range []struct{ phone, password string }{
		{"+905551112233", "wrong-password"},
		{"+905559999999", "secret1"},
		{"not-a-phone", "secret1"},
	} {
		_, err := f.svc.Login(ctx, tc.phone, tc.password)
		assert.Equal(t, apperrors.ErrUnauthorized, appCode(t, err), tc.phone)
	}

	tokens, err := f.svc.Login(ctx, "0555 111 22 33", "secret1")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, tokens.Role)

	_, err = f.svc.ValidateToken(ctx, "garbage")
	assert.Equal(t, apperrors.ErrUnauthorized, appCode(t, err))

	exists, err := f.svc.CheckPhone(ctx, "+905324445566")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode(6)
		require.NoError(t, err)
		assert.Regexp(t, `^\d{6}$`, code)
	}
}
