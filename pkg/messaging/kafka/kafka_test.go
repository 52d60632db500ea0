package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/pkg/messaging"
	"github.com/segmentio/kafka-go/compress"
)

func TestNewBroker_RequiresBrokers(t *testing.T) {
	_, err := NewBroker(Config{}, nil)
	assert.Error(t, err)
}

func TestTopic(t *testing.T) {
	b, err := NewBroker(Config{Brokers: []string{"localhost:9092"}, TopicPrefix: "clinic"}, nil)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "clinic.reservation.booked", b.Topic("reservation.booked"))
	assert.Equal(t, "clinic.changes", b.Topic("clinic.changes"))

	bare, err := NewBroker(Config{Brokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	defer bare.Close()
	assert.Equal(t, "slot.status_changed", bare.Topic("slot.status_changed"))
}

func TestMessageKey(t *testing.T) {
	assert.Equal(t, "2025-06-09T10:00", messageKey([]byte(`{"type":"x","slot_id":"2025-06-09T10:00"}`)))
	assert.Equal(t, "", messageKey([]byte(`"plain"`)))
}

func TestCompression(t *testing.T) {
	assert.Equal(t, compress.Gzip, compression("gzip"))
	assert.Equal(t, compress.Snappy, compression(""))
}

func TestPublishAfterClose(t *testing.T) {
	b, err := NewBroker(Config{Brokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	err = b.Publish(context.Background(), "changes", map[string]string{"a": "b"})
	assert.ErrorIs(t, err, messaging.ErrBrokerClosed)
}
