package phone_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/phone"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		region string
		want   string
	}{
		{"israeli local with leading zero", "0584003578", "IL", "+972584003578"},
		{"already international", "+14155551234", "IL", "+14155551234"},
		{"international with formatting", "+1 (415) 555-1234", "IL", "+14155551234"},
		{"double zero prefix", "0014155551234", "IL", "+14155551234"},
		{"bare digits get region code", "584003578", "IL", "+972584003578"},
		{"us local with region", "04155551234", "US", "+14155551234"},
		{"unknown region falls back to default", "0584003578", "XX", "+972584003578"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := phone.Normalize(tt.raw, tt.region)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRejectsImplausibleInput(t *testing.T) {
	for _, raw := range []string{"123", "", "+97", "call-me-maybe", "+9725840035781234567"} {
		t.Run(raw, func(t *testing.T) {
			_, err := phone.Normalize(raw, "IL")
			require.Error(t, err)
			assert.True(t, errors.Is(err, phone.ErrInvalidPhone), "want ErrInvalidPhone, got %v", err)
		})
	}
}

func TestInferChannel(t *testing.T) {
	assert.Equal(t, model.ChannelWhatsApp, phone.InferChannel("+972584003578"))
	assert.Equal(t, model.ChannelWhatsApp, phone.InferChannel("+1 (415) 555-1234"))
	assert.Equal(t, model.ChannelWhatsApp, phone.InferChannel("0014155551234"))
	assert.Equal(t, model.ChannelSMS, phone.InferChannel("0584003578"))
	assert.Equal(t, model.ChannelSMS, phone.InferChannel("584003578"))
}
