package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/config"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
)

var (
	ErrNoRecipient = errors.New("message has no recipient")
	ErrRejected    = errors.New("message rejected by provider")
)

const (
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
	ChannelLog      = "log"
)

// Sender delivers one message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg model.Message) (string, error)
}

// NewSender builds the sender for the configured channel.
func NewSender(cfg *config.Config, log *logger.Logger) (Sender, error) {
	switch cfg.Notify.Channel {
	case ChannelWhatsApp:
		return NewWhatsAppSender(cfg.Twilio, nil), nil
	case ChannelEmail:
		return NewEmailSender(cfg.SMTP), nil
	case ChannelLog, "":
		return NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("unknown notify channel %q", cfg.Notify.Channel)
	}
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{logger: log}
}

func (s *LogSender) Send(_ context.Context, msg model.Message) (string, error) {
	if msg.To == "" && msg.Email == "" {
		return "", ErrNoRecipient
	}
	id := "log-" + uuid.NewString()
	s.logger.Info("Notification", "id", id, "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return id, nil
}
