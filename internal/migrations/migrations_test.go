package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(files, dir)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	for _, e := range entries {
		body, err := fs.ReadFile(files, dir+"/"+e.Name())
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", e.Name())
		assert.Contains(t, string(body), "-- +goose Down", e.Name())
	}
}

func TestActiveSlotIndex(t *testing.T) {
	body, err := fs.ReadFile(files, dir+"/00003_reservations.sql")
	require.NoError(t, err)

	sql := string(body)
	assert.True(t, strings.Contains(sql, "CREATE UNIQUE INDEX IF NOT EXISTS reservations_active_slot_key"))
	assert.Contains(t, sql, "WHERE status IN ('pending', 'booked', 'approved')")
}
