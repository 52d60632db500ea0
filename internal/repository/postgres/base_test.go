package postgres

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("failed to create reservation: %w", &pq.Error{Code: "23505"})
	assert.True(t, isUniqueViolation(wrapped))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(sql.ErrNoRows))
	assert.False(t, isUniqueViolation(nil))
}

func TestDBTime(t *testing.T) {
	in := time.Date(2025, 6, 9, 10, 0, 0, 123456789, time.FixedZone("TRT", 3*3600))
	out := dbTime(in)
	assert.Equal(t, 123456000, out.Nanosecond())
	assert.Equal(t, time.UTC, out.Location())
	assert.True(t, out.Equal(in.Truncate(time.Microsecond)))
}

func TestActiveStatuses(t *testing.T) {
	assert.Equal(t, pq.StringArray{"pending", "booked", "approved"}, activeStatuses())
}
