package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

func testProfile() *model.Profile {
	return &model.Profile{
		Base:  model.Base{ID: uuid.New()},
		Phone: "+905551112233",
		Role:  model.RoleAdmin,
	}
}

func TestJWT_RoundTrip(t *testing.T) {
	svc := NewJWTService("secret", "clinic", time.Hour)
	p := testProfile()

	token, exp, err := svc.GenerateAccessToken(p)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, p.ID, claims.UserID)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.Equal(t, p.Phone, claims.Phone)
}

func TestJWT_Rejects(t *testing.T) {
	svc := NewJWTService("secret", "clinic", time.Hour)
	token, _, err := svc.GenerateAccessToken(testProfile())
	require.NoError(t, err)

	other := NewJWTService("other-secret", "clinic", time.Hour)
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := NewJWTService("secret", "someone-else", time.Hour)
	_, err = wrongIssuer.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_Expired(t *testing.T) {
	svc := NewJWTService("secret", "clinic", time.Minute).(*jwtService)
	past := time.Now().Add(-time.Hour)
	svc.now = func() time.Time { return past }

	token, _, err := svc.GenerateAccessToken(testProfile())
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
