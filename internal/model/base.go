package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Pagination represents common pagination parameters
type Pagination struct {
	Limit  int `json:"limit" form:"limit"`
	Offset int `json:"offset" form:"offset"`
}

// Normalize clamps the page to [1, max].
func (p Pagination) Normalize(def, max int) Pagination {
	if p.Limit <= 0 {
		p.Limit = def
	}
	if p.Limit > max {
		p.Limit = max
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// DateRange is an inclusive range of calendar dates (YYYY-MM-DD).
type DateRange struct {
	From string `json:"from" form:"from" binding:"required,datetime=2006-01-02"`
	To   string `json:"to" form:"to" binding:"required,datetime=2006-01-02"`
}
