package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/core"
)

const systemPrompt = "You are a financial assistant that extracts structured insights from emails. Respond with JSON only, no markdown."

const insightPromptFormat = `Analyze the following email messages and extract financial insights.
Only consider receipts, bills, subscriptions, payment confirmations and unusual charges.
Ignore newsletters, marketing and personal mail unless they state a charge.

Return a JSON array. Each element must have exactly these fields:
- id: string, unique, use the message id when the insight comes from one message
- kind: one of "subscription", "bill", "anomaly", "goal", "advice"
- title: short string
- merchantOrBill: merchant or biller name
- amount: number, 0 when unknown
- date: ISO-8601 date of the charge or message
- account: account or card mentioned, "Unknown" when absent
- category: spending category
- delta30: number, change versus the previous 30 days, 0 when unknown
- delta90: number, change versus the previous 90 days, 0 when unknown
- emailSummary: one sentence summary of the source email
- aiHeader: object with bullets (array of short strings), nextStep (short string),
  badges (array of short tags) and confidence (number between 0 and 1)

Return only the JSON array. Do not wrap it in markdown fences. Do not add commentary.

Messages:
%s`

type batchPayload struct {
	Count    int                      `json:"count"`
	Messages []core.AIReadableMessage `json:"messages"`
}

// InsightRequester sends a batch of messages to the LLM in one request
type InsightRequester struct {
	llm     core.LLMClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewInsightRequester creates a new InsightRequester. A zero timeout disables it.
func NewInsightRequester(llm core.LLMClient, timeout time.Duration, logger *zap.Logger) *InsightRequester {
	return &InsightRequester{
		llm:     llm,
		timeout: timeout,
		logger:  logger,
	}
}

// Request returns the model's raw response for msgs. An empty batch and a
// request that runs past the timeout both yield "".
func (r *InsightRequester) Request(ctx context.Context, msgs []core.AIReadableMessage) (string, error) {
	if len(msgs) == 0 {
		return "", nil
	}

	payload, err := json.MarshalIndent(batchPayload{Count: len(msgs), Messages: msgs}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal message batch: %w", err)
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := r.llm.Complete(callCtx, &core.CompletionRequest{
		System: systemPrompt,
		Prompt: fmt.Sprintf(insightPromptFormat, payload),
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			r.logger.Warn("Insight request timed out",
				zap.Duration("timeout", r.timeout),
				zap.Int("messages", len(msgs)))
			return "", nil
		}
		return "", fmt.Errorf("failed to request insights: %w", err)
	}

	r.logger.Debug("Received insight response",
		zap.Int("messages", len(msgs)),
		zap.Int("response_size", len(text)),
		zap.Duration("elapsed", time.Since(start)))

	return text, nil
}
