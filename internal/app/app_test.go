package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/config"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
)

func TestRules(t *testing.T) {
	cfg := &config.Config{
		Clinic: config.ClinicConfig{Timezone: "Europe/Istanbul"},
		Booking: config.BookingConfig{
			LeadTime:    6 * time.Hour,
			HorizonDays: 21,
			DailyLimit:  2,
		},
	}

	rules, err := Rules(cfg)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, rules.LeadTime)
	assert.Equal(t, 21, rules.HorizonDays)
	assert.Equal(t, 2, rules.DailyLimit)
	// unset values keep the defaults
	assert.Equal(t, 24*time.Hour, rules.RefundWindow)
	assert.Equal(t, 3, rules.WeeklyLimit)
	assert.Equal(t, "Europe/Istanbul", rules.Location.String())
}

func TestRulesBadTimezone(t *testing.T) {
	_, err := Rules(&config.Config{Clinic: config.ClinicConfig{Timezone: "Mars/Olympus"}})
	assert.Error(t, err)
}

func TestMemoryDriver(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Driver: "memory"}}

	store, err := OpenStore(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, store.Slots)

	brokers, err := OpenBrokers(cfg, logger.Nop())
	require.NoError(t, err)
	assert.Same(t, brokers.Feed, brokers.Events)
	assert.NoError(t, brokers.Ping(t.Context()))
	assert.NoError(t, brokers.Close())
}

func TestQueueRedisOpt(t *testing.T) {
	opt, err := QueueRedisOpt(config.RedisConfig{URL: "redis://:secret@cache:6380/0", QueueDB: 3})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 3, opt.DB)

	_, err = QueueRedisOpt(config.RedisConfig{URL: "::bad"})
	assert.Error(t, err)
}
