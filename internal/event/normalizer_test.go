package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSMS(t *testing.T) {
	ts := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

	ev, err := NormalizeSMS("Your OTP is 4821", "+15550100", ts)
	require.NoError(t, err)

	assert.Equal(t, SourceSMS, ev.SourceType)
	assert.Equal(t, "Your OTP is 4821", ev.Content)
	assert.Equal(t, "+15550100", ev.SenderNumber)
	assert.Equal(t, ts, ev.Timestamp)
}

func TestNormalizeSMSInvalid(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		sender string
	}{
		{"blank body", "   ", "+15550100"},
		{"blank sender", "hello", ""},
		{"both blank", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := NormalizeSMS(tt.body, tt.sender, time.Now())

			var invalidErr *InvalidEventError
			require.ErrorAs(t, err, &invalidErr)
			assert.Equal(t, "invalid message", invalidErr.Reason)
			require.NotNil(t, ev, "partial event is still returned for the rejection row")
			assert.Equal(t, SourceSMS, ev.SourceType)
		})
	}
}

func TestNormalizeNotificationContent(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		text    string
		content string
	}{
		{"title and text", "Payment", "received $20", "Payment: received $20"},
		{"title only", "Payment", "", "Payment"},
		{"text only", "", "received $20", "received $20"},
		{"whitespace trimmed", " Payment ", " received ", "Payment: received"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := NormalizeNotification("com.bank.app", "Bank", tt.title, tt.text, time.Now(), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.content, ev.Content)
		})
	}
}

func TestNormalizeNotificationInvalidWhenBlank(t *testing.T) {
	ev, err := NormalizeNotification("com.bank.app", "Bank", "  ", "", time.Now(), nil)

	var invalidErr *InvalidEventError
	require.ErrorAs(t, err, &invalidErr)
	require.NotNil(t, ev)
	assert.Equal(t, "com.bank.app", ev.PackageName)
}

func TestNormalizeNotificationCarriesMetadata(t *testing.T) {
	extras := map[string]ExtraValue{"amount": NumberValue(20)}

	ev, err := NormalizeNotification("com.bank.app", "Bank", "Payment", "received", time.Now(), extras)
	require.NoError(t, err)

	assert.Equal(t, SourceNotification, ev.SourceType)
	assert.Equal(t, "Bank", ev.AppName)
	assert.Equal(t, "Payment", ev.Title)
	assert.Equal(t, "received", ev.Text)
	assert.Equal(t, extras, ev.Extras)
}
