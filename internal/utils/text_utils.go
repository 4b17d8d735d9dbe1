package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

const truncationMarker = " [... truncated ...]"

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// TextProcessor turns provider text into model-safe content
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// StripHTML removes tags and collapses whitespace. It is not an HTML parser:
// script and style bodies survive as text.
func StripHTML(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(text)
	return CollapseWhitespace(text)
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims
func CollapseWhitespace(text string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// Sanitize collapses whitespace and applies the redaction rules in order.
// Input is NFKC-normalized first so full-width digits and symbols are caught.
func Sanitize(raw string) string {
	text := CollapseWhitespace(norm.NFKC.String(SanitizeUTF8(raw)))
	for _, rule := range redactions {
		text = rule.pattern.ReplaceAllString(text, rule.token)
	}
	return text
}

// Truncate cuts text to at most maxSize bytes on a rune boundary
func Truncate(text string, maxSize int) (string, bool) {
	if maxSize <= 0 || len(text) <= maxSize {
		return text, false
	}
	truncated := text[:maxSize]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated, true
}

// SanitizeUTF8 drops invalid UTF-8 sequences
func SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// TruncateText truncates text to maxSize bytes and marks the cut
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	truncated, cut := Truncate(text, maxSize)
	if !cut {
		return text
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated + truncationMarker
}

// ProcessText sanitizes and then truncates text in one operation
func (tp *TextProcessor) ProcessText(text string, maxSize int) string {
	return tp.TruncateText(Sanitize(text), maxSize)
}

// BodyText picks the best plain-text rendering of a message body
func BodyText(textBody, htmlBody, snippet string) string {
	if strings.TrimSpace(textBody) != "" {
		return textBody
	}
	if strings.TrimSpace(htmlBody) != "" {
		return StripHTML(htmlBody)
	}
	return snippet
}
