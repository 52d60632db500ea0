package model

import (
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Profile is a clinic account; patients carry the credit balance.
type Profile struct {
	Base
	FirstName        string     `db:"first_name" json:"first_name"`
	LastName         string     `db:"last_name" json:"last_name"`
	Phone            string     `db:"phone" json:"phone"`
	Email            *string    `db:"email" json:"email,omitempty"`
	Role             Role       `db:"role" json:"role"`
	PasswordHash     string     `db:"password_hash" json:"-"`
	Credits          int        `db:"credits" json:"credits"`
	CreditsExpiresAt *time.Time `db:"credits_expires_at" json:"credits_expires_at"`
}

func (p *Profile) Balance() CreditBalance {
	return CreditBalance{Credits: p.Credits, ExpiresAt: p.CreditsExpiresAt}
}

func (p *Profile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// CreditBalance is the ledger entry of one patient.
type CreditBalance struct {
	Credits   int        `json:"credits"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// HasWindow reports whether the validity window is open at now.
func (b CreditBalance) HasWindow(now time.Time) bool {
	return b.ExpiresAt != nil && b.ExpiresAt.After(now)
}

// Usable is the number of credits that can be spent at now.
func (b CreditBalance) Usable(now time.Time) int {
	if !b.HasWindow(now) || b.Credits < 0 {
		return 0
	}
	return b.Credits
}

// ProfileView is what a patient sees about themselves.
type ProfileView struct {
	*Profile
	UsableCredits int `json:"usable_credits"`
}

type ProfileFilters struct {
	// Query matches first name, last name or phone.
	Query string
	Role  Role
	Pagination
}

type SetCreditsRequest struct {
	Amount int `json:"amount" binding:"min=0"`
	Days   int `json:"days" binding:"min=0,max=3650"`
}

type CreateUserRequest struct {
	Phone     string `json:"phone" binding:"required"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"first_name" binding:"max=100"`
	LastName  string `json:"last_name" binding:"max=100"`
	Email     string `json:"email" binding:"omitempty,email"`
	Role      Role   `json:"role" binding:"omitempty,oneof=user admin"`
}

type UpdateUserRequest struct {
	FirstName *string `json:"first_name" binding:"omitempty,max=100"`
	LastName  *string `json:"last_name" binding:"omitempty,max=100"`
	Phone     *string `json:"phone"`
	Email     *string `json:"email" binding:"omitempty,email"`
	Role      *Role   `json:"role" binding:"omitempty,oneof=user admin"`
	Password  *string `json:"password" binding:"omitempty,min=6"`
}
