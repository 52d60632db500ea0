package model

import (
	"time"

	"github.com/google/uuid"
)

// AuthRequest types
type LoginRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

type SendOTPRequest struct {
	Phone string `json:"phone" binding:"required"`
}

type VerifyOTPRequest struct {
	Phone     string `json:"phone" binding:"required"`
	Code      string `json:"code" binding:"required,numeric,min=4,max=8"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"first_name" binding:"max=100"`
	LastName  string `json:"last_name" binding:"max=100"`
}

// AuthResponse types
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Role        Role      `json:"role"`
}

type VerifyOTPResponse struct {
	OK       bool      `json:"ok"`
	Existing bool      `json:"existing"`
	UserID   uuid.UUID `json:"user_id,omitempty"`
}

// TokenClaims is what the auth middleware places in the request context.
type TokenClaims struct {
	UserID uuid.UUID `json:"user_id"`
	Phone  string    `json:"phone"`
	Role   Role      `json:"role"`
}

// OTPCode is a one-time registration code; only its hash is stored.
type OTPCode struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Phone     string    `db:"phone" json:"phone"`
	CodeHash  string    `db:"code_hash" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Attempts  int       `db:"attempts" json:"attempts"`
	Used      bool      `db:"used" json:"used"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
