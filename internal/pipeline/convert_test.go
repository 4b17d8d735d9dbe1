package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/core"
	"github.com/mikey/insight-pipeline/internal/utils"
)

func TestParseSender(t *testing.T) {
	tests := []struct {
		in, name, address string
	}{
		{`"Jane Doe" <jane@example.com>`, "Jane Doe", "jane@example.com"},
		{"Store <orders@store.com>", "Store", "orders@store.com"},
		{"plain@example.com", "", "plain@example.com"},
		{"Broken, Name <broken@example.com", "Broken, Name", "broken@example.com"},
		{"Just A Name", "Just A Name", ""},
	}
	for _, tt := range tests {
		name, address := ParseSender(tt.in)
		assert.Equal(t, tt.name, name, tt.in)
		assert.Equal(t, tt.address, address, tt.in)
	}
}

func TestToAIReadable(t *testing.T) {
	c := NewConverter(utils.NewTextProcessor(zap.NewNop()), 4096, 40)
	msg := core.RawMessage{
		ID:                "m1",
		Subject:           "Invoice for $120.00",
		From:              "Acme Billing <billing@acme.com>",
		ReceivedAtEpochMs: 1714600000000,
		HTMLBody:          "<p>Merchant: Acme Corp</p><p>the amount due is $120.00 plus a $5.00 fee. Call 555-123-4567.</p>",
		Provider:          core.ProviderOutlook,
	}

	got := c.ToAIReadable(msg)
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "Invoice for [AMOUNT]", got.Subject)
	assert.Equal(t, "Acme Billing", got.SenderName)
	assert.Equal(t, "billing@acme.com", got.SenderEmail)
	assert.Equal(t, "2024-05-01T21:46:40Z", got.ReceivedAtISO8601)
	assert.Equal(t, core.TypeBill, got.Type)
	require.NotNil(t, got.Amount)
	assert.Equal(t, 120.0, *got.Amount)
	assert.Equal(t, "Acme Corp", got.Merchant)

	assert.False(t, utils.ContainsSensitive(got.SanitizedContent))
	assert.Contains(t, got.SanitizedContent, "[PHONE]")
	assert.LessOrEqual(t, len(got.Summary), 40)
	assert.False(t, strings.Contains(got.Summary, "<p>"))
}

func TestToAIReadableMissingDate(t *testing.T) {
	c := NewConverter(utils.NewTextProcessor(zap.NewNop()), 0, 0)
	got := c.ToAIReadable(core.RawMessage{ID: "x", Snippet: "hello"})
	assert.Equal(t, "", got.ReceivedAtISO8601)
	assert.Equal(t, "hello", got.Summary)
	assert.Equal(t, "hello", got.SanitizedContent)
	assert.Nil(t, got.Amount)
}
