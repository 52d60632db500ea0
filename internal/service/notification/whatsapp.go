package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jwalitptl/clinic-booking/internal/config"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/circuitbreaker"
)

// WhatsAppSender sends messages through the Twilio Messages API.
type WhatsAppSender struct {
	cfg     config.TwilioConfig
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewWhatsAppSender uses client when given, otherwise one with a 15s timeout.
func NewWhatsAppSender(cfg config.TwilioConfig, client *http.Client) *WhatsAppSender {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	return &WhatsAppSender{
		cfg:    cfg,
		client: client,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "twilio",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
	}
}

type twilioResponse struct {
	SID     string `json:"sid"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func whatsappAddress(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

func (s *WhatsAppSender) Send(ctx context.Context, msg model.Message) (string, error) {
	if msg.To == "" {
		return "", ErrNoRecipient
	}

	var sid string
	err := s.breaker.Execute(func() error {
		var err error
		sid, err = s.post(ctx, msg)
		return err
	})
	return sid, err
}

func (s *WhatsAppSender) post(ctx context.Context, msg model.Message) (string, error) {
	form := url.Values{}
	form.Set("To", whatsappAddress(msg.To))
	form.Set("From", whatsappAddress(s.cfg.From))
	form.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(s.cfg.BaseURL, "/"), url.PathEscape(s.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call twilio: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read twilio response: %w", err)
	}

	var out twilioResponse
	_ = json.Unmarshal(body, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d code %d: %s", ErrRejected, resp.StatusCode, out.Code, out.Message)
	}
	if out.SID == "" {
		return "", fmt.Errorf("%w: response without sid", ErrRejected)
	}
	return out.SID, nil
}
