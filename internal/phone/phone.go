package phone

import (
	"fmt"
	"strings"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
)

// ErrInvalidPhone is wrapped by every normalization failure so callers can
// classify it without calling the provider.
var ErrInvalidPhone = fmt.Errorf("invalid phone number")

const (
	minDigits = 8
	maxDigits = 15
)

// DefaultRegion is used when the tenant has no region configured.
const DefaultRegion = "IL"

// countryCodes maps ISO region codes to dialing prefixes for the regions
// the platform operates in.
var countryCodes = map[string]string{
	"IL": "972",
	"US": "1",
	"GB": "44",
	"FR": "33",
	"DE": "49",
	"ES": "34",
	"IT": "39",
	"BR": "55",
	"AR": "54",
	"MX": "52",
	"RU": "7",
	"UA": "380",
}

// Normalize converts raw user input into canonical E.164-style form
// ("+<country code><subscriber number>"). It handles local formats with a
// single leading zero by substituting the default region's dialing code,
// and rejects numbers whose digit count falls outside a plausible range.
func Normalize(raw, defaultRegion string) (string, error) {
	cleaned := stripSeparators(raw)
	if cleaned == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidPhone)
	}

	cc, ok := countryCodes[strings.ToUpper(defaultRegion)]
	if !ok {
		cc = countryCodes[DefaultRegion]
	}

	var digits string
	switch {
	case strings.HasPrefix(cleaned, "+"):
		digits = cleaned[1:]
	case strings.HasPrefix(cleaned, "00"):
		digits = cleaned[2:]
	case strings.HasPrefix(cleaned, "0"):
		digits = cc + cleaned[1:]
	default:
		digits = cc + cleaned
	}

	if !allDigits(digits) {
		return "", fmt.Errorf("%w: non-numeric characters in %q", ErrInvalidPhone, raw)
	}
	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", fmt.Errorf("%w: %d digits, want %d-%d", ErrInvalidPhone, len(digits), minDigits, maxDigits)
	}

	return "+" + digits, nil
}

// InferChannel picks the default transport from the shape of the raw input:
// numbers already supplied in full international form go to WhatsApp,
// everything else falls back to SMS. An explicit channel override always
// wins; callers apply it before consulting this function.
func InferChannel(raw string) model.Channel {
	cleaned := stripSeparators(raw)
	if strings.HasPrefix(cleaned, "+") || strings.HasPrefix(cleaned, "00") {
		return model.ChannelWhatsApp
	}
	return model.ChannelSMS
}

func stripSeparators(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch r {
		case ' ', '-', '(', ')', '.', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
