package messaging

import (
	"context"
	"errors"
)

var ErrBrokerClosed = errors.New("broker closed")

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Message is the envelope written by brokers that carry a type next to the payload.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
