package pipeline

import (
	"cmp"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mikey/insight-pipeline/internal/classify"
	"github.com/mikey/insight-pipeline/internal/core"
	"github.com/mikey/insight-pipeline/internal/utils"
)

// Converter derives AI-readable messages from raw provider messages
type Converter struct {
	textProcessor  *utils.TextProcessor
	maxContentSize int
	summarySize    int
}

// NewConverter creates a new Converter
func NewConverter(textProcessor *utils.TextProcessor, maxContentSize, summarySize int) *Converter {
	return &Converter{
		textProcessor:  textProcessor,
		maxContentSize: maxContentSize,
		summarySize:    summarySize,
	}
}

// ToAIReadable converts one raw message. Classification reads the raw text;
// everything forwarded to the model is sanitized.
func (c *Converter) ToAIReadable(msg core.RawMessage) core.AIReadableMessage {
	result := classify.Classify(msg)
	name, address := ParseSender(msg.From)

	body := utils.BodyText(msg.TextBody, msg.HTMLBody, msg.Snippet)
	summarySource := msg.Snippet
	if strings.TrimSpace(summarySource) == "" {
		summarySource = body
	}
	summary, _ := utils.Truncate(utils.Sanitize(summarySource), c.summarySize)

	return core.AIReadableMessage{
		ID:                msg.ID,
		Subject:           utils.Sanitize(msg.Subject),
		SenderName:        name,
		SenderEmail:       address,
		ReceivedAtISO8601: formatEpochMs(msg.ReceivedAtEpochMs),
		SanitizedContent:  c.textProcessor.ProcessText(body, c.maxContentSize),
		Summary:           strings.TrimSpace(summary),
		Type:              result.Type,
		Amount:            result.Amount,
		Merchant:          result.Merchant,
	}
}

// ConvertAll sorts messages newest first and converts each of them
func (c *Converter) ConvertAll(msgs []core.RawMessage) []core.AIReadableMessage {
	sorted := slices.Clone(msgs)
	slices.SortStableFunc(sorted, func(a, b core.RawMessage) int {
		if n := cmp.Compare(b.ReceivedAtEpochMs, a.ReceivedAtEpochMs); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return lo.Map(sorted, func(m core.RawMessage, _ int) core.AIReadableMessage {
		return c.ToAIReadable(m)
	})
}

// ParseSender splits a From header into display name and address
func ParseSender(from string) (string, string) {
	from = strings.TrimSpace(from)
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Name, addr.Address
	}

	if i := strings.LastIndex(from, "<"); i >= 0 {
		name := strings.Trim(strings.TrimSpace(from[:i]), `"`)
		address := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(from[i+1:]), ">"))
		return name, address
	}
	if strings.Contains(from, "@") {
		return "", from
	}
	return from, ""
}

// Summarize counts messages per type
func Summarize(msgs []core.AIReadableMessage) core.MessageSummary {
	byType := make(map[core.MessageType]int, len(core.MessageTypes))
	for _, t := range core.MessageTypes {
		byType[t] = 0
	}
	for t, n := range lo.CountValuesBy(msgs, func(m core.AIReadableMessage) core.MessageType { return m.Type }) {
		byType[t] = n
	}

	return core.MessageSummary{
		Total:      len(msgs),
		ByType:     byType,
		WithAmount: lo.CountBy(msgs, func(m core.AIReadableMessage) bool { return m.Amount != nil }),
	}
}

// FilterByType keeps messages of the given type; an empty type keeps all
func FilterByType(msgs []core.AIReadableMessage, t core.MessageType) []core.AIReadableMessage {
	if t == "" {
		return msgs
	}
	return lo.Filter(msgs, func(m core.AIReadableMessage, _ int) bool { return m.Type == t })
}

func formatEpochMs(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
