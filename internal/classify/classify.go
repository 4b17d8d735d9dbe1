// Package classify assigns a coarse type to a message and pulls out the
// amount and merchant it mentions, using fixed pattern rules.
package classify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mikey/insight-pipeline/internal/core"
	"github.com/mikey/insight-pipeline/internal/utils"
)

// Result is the advisory classification of one message
type Result struct {
	Type     core.MessageType
	Amount   *float64
	Merchant string
}

var (
	receiptCues = regexp.MustCompile(`(?i)\b(receipt|order(ed|s)?|purchase[ds]?|your purchase|thank you for shopping|shipped|transaction)\b`)
	billCues    = regexp.MustCompile(`(?i)\b(bills?|billing|invoice|payment|statement|amount due|balance|due date|autopay)\b`)

	newsletterSubject = regexp.MustCompile(`(?i)(newsletter|unsubscribe)`)
	noReplySender     = regexp.MustCompile(`(?i)(no[\-_.]?reply|do[\-_.]?not[\-_.]?reply)`)

	// businessCues separate automated commercial mail from personal messages
	businessCues = regexp.MustCompile(`(?i)\b(account|subscription|renew(al)?|membership|offer|sale|discount|promo(tion)?|deal|shipping|delivery|customer|support|store|plan|trial|refund|credit|bank|alert)\b`)

	amountPattern = regexp.MustCompile(`(?:\$|USD\s?)\s?(\d{1,3}(?:,\d{3})+|\d+)(\.\d{1,2})?`)

	merchantName     = `([A-Z0-9][\w&'.\-]*(?:[ \t]+[A-Z0-9][\w&'.\-]*){0,3})`
	merchantPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i:\bfrom)[ \t]+` + merchantName),
		regexp.MustCompile(`(?i:\bmerchant):\s*` + merchantName),
		regexp.MustCompile(`(?i:\bvendor):\s*` + merchantName),
		regexp.MustCompile(`(?i:\bat)[ \t]+` + merchantName),
	}
)

// Classify inspects the unredacted subject, sender and body of msg
func Classify(msg core.RawMessage) Result {
	body := utils.CollapseWhitespace(utils.BodyText(msg.TextBody, msg.HTMLBody, msg.Snippet))
	text := msg.Subject + "\n" + body

	return Result{
		Type:     classifyType(msg.Subject, msg.From, text),
		Amount:   ExtractAmount(text),
		Merchant: ExtractMerchant(text),
	}
}

// classifyType applies the type rules in priority order. Receipts and bills
// are checked before the no-reply rule since most receipts come from no-reply
// senders.
func classifyType(subject, from, text string) core.MessageType {
	switch {
	case receiptCues.MatchString(text):
		return core.TypeReceipt
	case billCues.MatchString(text):
		return core.TypeBill
	case newsletterSubject.MatchString(subject), noReplySender.MatchString(senderAddress(from)):
		return core.TypeNewsletter
	case !businessCues.MatchString(text):
		return core.TypePersonal
	default:
		return core.TypeOther
	}
}

// ExtractAmount returns the largest currency amount in text, or nil
func ExtractAmount(text string) *float64 {
	var best *float64
	for _, m := range amountPattern.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "")+m[2], 64)
		if err != nil {
			continue
		}
		if best == nil || v > *best {
			best = &v
		}
	}
	return best
}

// ExtractMerchant returns the first merchant phrase found, or ""
func ExtractMerchant(text string) string {
	for _, p := range merchantPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			if name := strings.TrimRight(m[1], ".,'-"); name != "" {
				return name
			}
		}
	}
	return ""
}

func senderAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		return strings.TrimSuffix(from[i+1:], ">")
	}
	return from
}
