package phone

import (
	"errors"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var ErrInvalid = errors.New("invalid phone number")

var e164 = regexp.MustCompile(`^\+\d{10,15}$`)

// IsE164 reports whether s is a plus sign followed by 10 to 15 digits.
func IsE164(s string) bool {
	return e164.MatchString(s)
}

// Normalize parses raw in the default region and formats it as E.164.
func Normalize(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalid
	}
	if strings.HasPrefix(raw, "00") {
		raw = "+" + strings.TrimPrefix(raw, "00")
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", ErrInvalid
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", ErrInvalid
	}

	formatted := phonenumbers.Format(num, phonenumbers.E164)
	if !IsE164(formatted) {
		return "", ErrInvalid
	}
	return formatted, nil
}
