package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSanitizeRedactions(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"url", "see https://shop.example.com/order?id=42 now", "see [URL] now"},
		{"www url", "visit www.example.com today", "visit [URL] today"},
		{"email", "reply to billing@example.com please", "reply to [EMAIL] please"},
		{"card spaced", "card 4111 1111 1111 1111 charged", "card [CARD_NUMBER] charged"},
		{"card dashed", "card 4111-1111-1111-1111", "card [CARD_NUMBER]"},
		{"amount", "total $1,234.56 due", "total [AMOUNT] due"},
		{"ssn", "ssn 123-45-6789 on file", "ssn [SSN] on file"},
		{"phone", "call (555) 123-4567 today", "call [PHONE] today"},
		{"phone dotted", "call 555.123.4567", "call [PHONE]"},
		{"whitespace", "  a\n\n\tb   c  ", "a b c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestSanitizeLeavesNoSensitivePatterns(t *testing.T) {
	inputs := []string{
		"Order from Amazon: $12.00 and $145.30, card 4111111111111111, call 555-123-4567",
		"Contact jane.doe+bills@mail.example.org or https://example.com/x?y=1",
		"SSN 123-45-6789\n\nPhone +1 555 123 4567",
		"Fullwidth ＄１２．００ amount",
		"Write to billing.team@www.example.com today",
	}
	for _, in := range inputs {
		out := Sanitize(in)
		assert.False(t, ContainsSensitive(out), "sensitive pattern left in %q", out)
	}
}

func TestSanitizeAddressOnWWWHost(t *testing.T) {
	out := Sanitize("Write to billing.team@www.example.com or visit www.example.com/help")
	assert.Equal(t, "Write to [EMAIL] or visit [URL]", out)
	assert.NotContains(t, out, "billing.team")

	assert.Equal(t, "[URL] and [URL]", Sanitize("https://a.example/x and www.b.example"))
}

func TestStripHTML(t *testing.T) {
	html := "<html><body><p>Hello&nbsp;there</p>\r\n<div>Your   order</div></body></html>"
	assert.Equal(t, "Hello there Your order", StripHTML(html))
	assert.Equal(t, "", StripHTML("<br/><br/>"))
	assert.NotPanics(t, func() { StripHTML("<script>if (a < b) {}</script><style") })
}

func TestTruncate(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "short", tp.TruncateText("short", 10))
	assert.Equal(t, "short", tp.TruncateText("short", 0))

	out := tp.TruncateText(strings.Repeat("é", 10), 5)
	assert.True(t, strings.HasPrefix(out, "éé"))
	assert.True(t, strings.HasSuffix(out, truncationMarker))

	cut, ok := Truncate("日本語", 4)
	assert.True(t, ok)
	assert.Equal(t, "日", cut)
}

func TestBodyText(t *testing.T) {
	assert.Equal(t, "plain", BodyText("plain", "<p>html</p>", "snip"))
	assert.Equal(t, "html", BodyText("  ", "<p>html</p>", "snip"))
	assert.Equal(t, "snip", BodyText("", "", "snip"))
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "ab", SanitizeUTF8("a\xffb"))
	assert.Equal(t, "ok", SanitizeUTF8("ok"))
}
