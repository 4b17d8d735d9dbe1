package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/core"
	"github.com/mikey/insight-pipeline/internal/utils"
)

// DefaultOutlookBaseURL is the Microsoft Graph v1.0 root
const DefaultOutlookBaseURL = "https://graph.microsoft.com/v1.0"

const outlookMessageFields = "id,subject,bodyPreview,body,from,receivedDateTime"

// OutlookProvider fetches messages through Microsoft Graph
type OutlookProvider struct {
	baseURL string
	opts    Options
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

type outlookList struct {
	Value []struct {
		ID string `json:"id"`
	} `json:"value"`
}

type outlookMessage struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	BodyPreview string `json:"bodyPreview"`
	Body        struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	ReceivedDateTime string `json:"receivedDateTime"`
}

// NewOutlookProvider creates an Outlook adapter. An empty baseURL uses Graph v1.0.
func NewOutlookProvider(baseURL string, opts Options, logger *zap.Logger) *OutlookProvider {
	if baseURL == "" {
		baseURL = DefaultOutlookBaseURL
	}
	return &OutlookProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		breaker: newBreaker(core.ProviderOutlook, opts, logger),
		logger:  logger,
	}
}

// Name implements core.MailProvider
func (o *OutlookProvider) Name() core.Provider {
	return core.ProviderOutlook
}

// FetchMessages implements core.MailProvider
func (o *OutlookProvider) FetchMessages(ctx context.Context, token string, maxResults int) ([]core.RawMessage, error) {
	client := bearerClient(ctx, o.opts.HTTPClient, token)

	query := url.Values{}
	query.Set("$top", strconv.Itoa(maxResults))
	query.Set("$select", "id")
	query.Set("$orderby", "receivedDateTime desc")

	listed, err := o.breaker.Execute(func() (interface{}, error) {
		var list outlookList
		if err := o.getJSON(ctx, client, o.baseURL+"/me/messages?"+query.Encode(), &list); err != nil {
			return nil, err
		}
		return &list, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list outlook messages: %w", err)
	}

	list := listed.(*outlookList)
	ids := make([]string, 0, len(list.Value))
	for _, v := range list.Value {
		ids = append(ids, v.ID)
	}

	fields := url.Values{}
	fields.Set("$select", outlookMessageFields)
	messages := fetchEach(ids, o.opts.Concurrency, o.logger, func(id string) (core.RawMessage, error) {
		var msg outlookMessage
		endpoint := o.baseURL + "/me/messages/" + url.PathEscape(id) + "?" + fields.Encode()
		if err := o.getJSON(ctx, client, endpoint, &msg); err != nil {
			return core.RawMessage{}, err
		}
		return outlookToRaw(&msg), nil
	})

	o.logger.Debug("Fetched outlook messages",
		zap.Int("listed", len(ids)),
		zap.Int("fetched", len(messages)))

	return messages, nil
}

func (o *OutlookProvider) getJSON(ctx context.Context, client *http.Client, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{Provider: core.ProviderOutlook, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func outlookToRaw(msg *outlookMessage) core.RawMessage {
	raw := core.RawMessage{
		ID:       msg.ID,
		Subject:  msg.Subject,
		Snippet:  msg.BodyPreview,
		Provider: core.ProviderOutlook,
	}

	addr := msg.From.EmailAddress
	switch {
	case addr.Name != "" && addr.Address != "":
		raw.From = fmt.Sprintf("%s <%s>", addr.Name, addr.Address)
	case addr.Address != "":
		raw.From = addr.Address
	default:
		raw.From = addr.Name
	}

	if t, err := time.Parse(time.RFC3339, msg.ReceivedDateTime); err == nil {
		raw.ReceivedAtEpochMs = t.UnixMilli()
	}

	if strings.EqualFold(msg.Body.ContentType, "html") {
		raw.HTMLBody = msg.Body.Content
		raw.TextBody = utils.StripHTML(msg.Body.Content)
	} else {
		raw.TextBody = msg.Body.Content
	}
	return raw
}
