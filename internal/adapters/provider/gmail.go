package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mikey/insight-pipeline/internal/core"
	"github.com/mikey/insight-pipeline/internal/utils"
)

const gmailUser = "me"

// GmailProvider fetches messages through the Gmail API
type GmailProvider struct {
	endpoint string
	opts     Options
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewGmailProvider creates a Gmail adapter. An empty endpoint uses the public API.
func NewGmailProvider(endpoint string, opts Options, logger *zap.Logger) *GmailProvider {
	return &GmailProvider{
		endpoint: endpoint,
		opts:     opts,
		breaker:  newBreaker(core.ProviderGmail, opts, logger),
		logger:   logger,
	}
}

// Name implements core.MailProvider
func (g *GmailProvider) Name() core.Provider {
	return core.ProviderGmail
}

// FetchMessages implements core.MailProvider
func (g *GmailProvider) FetchMessages(ctx context.Context, token string, maxResults int) ([]core.RawMessage, error) {
	srv, err := g.service(ctx, token)
	if err != nil {
		return nil, err
	}

	listed, err := g.breaker.Execute(func() (interface{}, error) {
		resp, err := srv.Users.Messages.List(gmailUser).MaxResults(int64(maxResults)).Context(ctx).Do()
		if err != nil {
			return nil, wrapGoogleError(err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list gmail messages: %w", err)
	}

	resp := listed.(*gmail.ListMessagesResponse)
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}

	messages := fetchEach(ids, g.opts.Concurrency, g.logger, func(id string) (core.RawMessage, error) {
		msg, err := srv.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
		if err != nil {
			return core.RawMessage{}, wrapGoogleError(err)
		}
		return gmailToRaw(msg), nil
	})

	g.logger.Debug("Fetched gmail messages",
		zap.Int("listed", len(ids)),
		zap.Int("fetched", len(messages)))

	return messages, nil
}

func (g *GmailProvider) service(ctx context.Context, token string) (*gmail.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(bearerClient(ctx, g.opts.HTTPClient, token))}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}

	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return srv, nil
}

func gmailToRaw(msg *gmail.Message) core.RawMessage {
	raw := core.RawMessage{
		ID:                msg.Id,
		ReceivedAtEpochMs: msg.InternalDate,
		Snippet:           msg.Snippet,
		Provider:          core.ProviderGmail,
	}
	if msg.Payload == nil {
		return raw
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			raw.Subject = h.Value
		case "from":
			raw.From = h.Value
		}
	}

	raw.TextBody, raw.HTMLBody = extractBodies(msg.Payload)
	if raw.TextBody == "" && raw.HTMLBody != "" {
		raw.TextBody = utils.StripHTML(raw.HTMLBody)
	}
	return raw
}

// extractBodies returns the plain-text and HTML bodies of a payload. A
// single-part payload is filed by its declared type; a multipart payload
// yields the first part of each type, searched depth first.
func extractBodies(part *gmail.MessagePart) (text, html string) {
	if len(part.Parts) == 0 {
		data := decodeBody(part.Body)
		if strings.HasPrefix(part.MimeType, "text/html") {
			return "", data
		}
		if part.MimeType == "" || strings.HasPrefix(part.MimeType, "text/") {
			return data, ""
		}
		return "", ""
	}
	return findPart(part, "text/plain"), findPart(part, "text/html")
}

func findPart(part *gmail.MessagePart, mimeType string) string {
	for _, p := range part.Parts {
		if len(p.Parts) > 0 {
			if s := findPart(p, mimeType); s != "" {
				return s
			}
			continue
		}
		if strings.HasPrefix(p.MimeType, mimeType) {
			if s := decodeBody(p.Body); s != "" {
				return s
			}
		}
	}
	return ""
}

// decodeBody decodes the URL-safe base64 body data Gmail returns
func decodeBody(body *gmail.MessagePartBody) string {
	if body == nil || body.Data == "" {
		return ""
	}
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding} {
		if data, err := enc.DecodeString(body.Data); err == nil {
			return string(data)
		}
	}
	return ""
}

func wrapGoogleError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &APIError{Provider: core.ProviderGmail, StatusCode: gErr.Code, Body: gErr.Message}
	}
	return err
}
