package utils

import "regexp"

type redaction struct {
	pattern *regexp.Regexp
	token   string
}

// redactions run in order. URLs go first so addresses and digits inside
// links are swallowed whole. A URL must not follow an address's "@", or the
// local part would survive as "user@[URL]".
var redactions = []redaction{
	{regexp.MustCompile(`(?i)(^|[^@\w.\-])(?:https?://|www\.)[^\s<>"']+`), "${1}[URL]"},
	{regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), "[EMAIL]"},
	{regexp.MustCompile(`\b(?:\d{4}[ \-]?){3}\d{4}\b`), "[CARD_NUMBER]"},
	{regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?`), "[AMOUNT]"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN]"},
	{regexp.MustCompile(`(?:\+?1[\s.\-]?)?(?:\(\d{3}\)|\b\d{3})[\s.\-]?\d{3}[\s.\-]?\d{4}\b`), "[PHONE]"},
}

// ContainsSensitive reports whether any redaction rule still matches text
func ContainsSensitive(text string) bool {
	for _, rule := range redactions {
		if rule.pattern.MatchString(text) {
			return true
		}
	}
	return false
}
