package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/clinic-booking/internal/config"
	"github.com/jwalitptl/clinic-booking/internal/model"
)

// Dialer is the part of gomail.Dialer the sender needs.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender delivers messages over SMTP to the patient's email address.
type EmailSender struct {
	dialer Dialer
	from   string
}

func NewEmailSender(cfg config.SMTPConfig) *EmailSender {
	return NewEmailSenderWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From)
}

func NewEmailSenderWithDialer(d Dialer, from string) *EmailSender {
	return &EmailSender{dialer: d, from: from}
}

func (s *EmailSender) Send(ctx context.Context, msg model.Message) (string, error) {
	if msg.Email == "" {
		return "", ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(s.from))
	m := gomail.NewMessage()
	m.SetHeader("Message-ID", id)
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.Email)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return "", err
	}
	return id, nil
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return strings.Trim(addr[i+1:], "> ")
	}
	return "localhost"
}
