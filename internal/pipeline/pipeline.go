// Package pipeline turns a user's mailbox into normalized insight records.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/core"
	"github.com/mikey/insight-pipeline/internal/senderfilter"
)

// Options tunes the email pipeline
type Options struct {
	DefaultMaxResults int
	SkipTypes         []core.MessageType
}

// EmailPipeline fetches, converts and batches messages for the LLM, then
// recovers and normalizes its answer
type EmailPipeline struct {
	providers map[core.Provider]core.MailProvider
	converter *Converter
	requester *InsightRequester
	senders   *senderfilter.Checker
	opts      Options
	logger    *zap.Logger
}

// NewEmailPipeline creates a new EmailPipeline
func NewEmailPipeline(
	providers []core.MailProvider,
	converter *Converter,
	requester *InsightRequester,
	senders *senderfilter.Checker,
	opts Options,
	logger *zap.Logger,
) *EmailPipeline {
	return &EmailPipeline{
		providers: lo.KeyBy(providers, func(p core.MailProvider) core.Provider { return p.Name() }),
		converter: converter,
		requester: requester,
		senders:   senders,
		opts:      opts,
		logger:    logger,
	}
}

// Messages fetches and converts messages, newest first
func (p *EmailPipeline) Messages(ctx context.Context, req core.InsightRequest) ([]core.AIReadableMessage, error) {
	provider, ok := p.providers[req.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownProvider, req.Provider)
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = p.opts.DefaultMaxResults
	}

	raw, err := provider.FetchMessages(ctx, req.Token, maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s messages: %w", req.Provider, err)
	}

	return p.converter.ConvertAll(raw), nil
}

// Insights implements core.EmailInsightSource
func (p *EmailPipeline) Insights(ctx context.Context, req core.InsightRequest) ([]core.InsightRecord, error) {
	runID := uuid.NewString()
	logger := p.logger.With(zap.String("run_id", runID), zap.String("provider", string(req.Provider)))

	msgs, err := p.Messages(ctx, req)
	if err != nil {
		return nil, err
	}

	batch := lo.Filter(msgs, func(m core.AIReadableMessage, _ int) bool {
		return !lo.Contains(p.opts.SkipTypes, m.Type) && !p.senders.IsIgnored(m.SenderEmail)
	})
	logger.Debug("Prepared message batch",
		zap.Int("fetched", len(msgs)),
		zap.Int("forwarded", len(batch)))

	text, err := p.requester.Request(ctx, batch)
	if err != nil {
		return nil, err
	}

	records := core.NormalizeText(text)
	if len(records) == 0 && text != "" {
		logger.Info("Model response yielded no insights", zap.Int("response_size", len(text)))
	}
	return records, nil
}
