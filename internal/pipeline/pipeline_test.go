package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/core"
	"github.com/mikey/insight-pipeline/internal/senderfilter"
	"github.com/mikey/insight-pipeline/internal/utils"
)

type fakeProvider struct {
	name     core.Provider
	messages []core.RawMessage
	err      error
	gotToken string
	gotMax   int
}

func (f *fakeProvider) Name() core.Provider { return f.name }

func (f *fakeProvider) FetchMessages(ctx context.Context, token string, maxResults int) ([]core.RawMessage, error) {
	f.gotToken, f.gotMax = token, maxResults
	return f.messages, f.err
}

type fakeLLM struct {
	mu       sync.Mutex
	response string
	err      error
	delay    time.Duration
	prompts  []string
}

func (f *fakeLLM) Complete(ctx context.Context, req *core.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.response, f.err
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func testMessages() []core.RawMessage {
	return []core.RawMessage{
		{
			ID:                "old",
			Subject:           "Your receipt from Netflix",
			From:              "Netflix <no-reply@netflix.com>",
			ReceivedAtEpochMs: 1714500000000,
			TextBody:          "You paid $15.49 with card 4111 1111 1111 1111. Questions? support@netflix.com",
			Provider:          core.ProviderGmail,
		},
		{
			ID:                "new",
			Subject:           "Lunch?",
			From:              "\"Sam Lee\" <sam@example.com>",
			ReceivedAtEpochMs: 1714600000000,
			Snippet:           "Want to grab lunch tomorrow?",
			Provider:          core.ProviderGmail,
		},
	}
}

func newTestPipeline(provider core.MailProvider, llm core.LLMClient, opts Options, ignored ...string) *EmailPipeline {
	logger := zap.NewNop()
	return NewEmailPipeline(
		[]core.MailProvider{provider},
		NewConverter(utils.NewTextProcessor(logger), 4096, 200),
		NewInsightRequester(llm, time.Second, logger),
		senderfilter.NewChecker(ignored, logger),
		opts,
		logger,
	)
}

func TestInsightsEndToEnd(t *testing.T) {
	provider := &fakeProvider{name: core.ProviderGmail, messages: testMessages()}
	llm := &fakeLLM{response: "Sure!\n```json\n[{\"id\":\"old\",\"kind\":\"subscription\",\"title\":\"Netflix\",\"amount\":15.49}]\n```"}
	p := newTestPipeline(provider, llm, Options{DefaultMaxResults: 25})

	records, err := p.Insights(context.Background(), core.InsightRequest{Provider: core.ProviderGmail, Token: "tok"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "old", records[0].ID)
	assert.Equal(t, core.KindSubscription, records[0].Kind)
	assert.Equal(t, 15.49, records[0].Amount)

	assert.Equal(t, "tok", provider.gotToken)
	assert.Equal(t, 25, provider.gotMax)

	require.Equal(t, 1, llm.calls())
	prompt := llm.prompts[0]
	assert.NotContains(t, prompt, "4111 1111 1111 1111")
	assert.NotContains(t, prompt, "$15.49")
	assert.NotContains(t, prompt, "support@netflix.com")
	assert.Contains(t, prompt, "[CARD_NUMBER]")
	assert.Less(t, strings.Index(prompt, `"id": "new"`), strings.Index(prompt, `"id": "old"`))
}

func TestInsightsSkipsFilteredMessages(t *testing.T) {
	provider := &fakeProvider{name: core.ProviderGmail, messages: testMessages()}
	llm := &fakeLLM{response: "[]"}
	p := newTestPipeline(provider, llm, Options{SkipTypes: []core.MessageType{core.TypePersonal}}, "netflix.com")

	records, err := p.Insights(context.Background(), core.InsightRequest{Provider: core.ProviderGmail, Token: "tok", MaxResults: 5})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, llm.calls())
	assert.Equal(t, 5, provider.gotMax)
}

func TestInsightsUnknownProvider(t *testing.T) {
	p := newTestPipeline(&fakeProvider{name: core.ProviderGmail}, &fakeLLM{}, Options{})

	_, err := p.Insights(context.Background(), core.InsightRequest{Provider: core.ProviderOutlook})
	assert.ErrorIs(t, err, core.ErrUnknownProvider)
}

func TestInsightsListFailure(t *testing.T) {
	listErr := errors.New("401 unauthorized")
	p := newTestPipeline(&fakeProvider{name: core.ProviderGmail, err: listErr}, &fakeLLM{}, Options{})

	_, err := p.Insights(context.Background(), core.InsightRequest{Provider: core.ProviderGmail})
	assert.ErrorIs(t, err, listErr)
}

func TestInsightsLLMTransportError(t *testing.T) {
	llmErr := errors.New("connection refused")
	provider := &fakeProvider{name: core.ProviderGmail, messages: testMessages()}
	p := newTestPipeline(provider, &fakeLLM{err: llmErr}, Options{})

	_, err := p.Insights(context.Background(), core.InsightRequest{Provider: core.ProviderGmail})
	assert.ErrorIs(t, err, llmErr)
}

func TestInsightsGarbageResponseIsEmpty(t *testing.T) {
	provider := &fakeProvider{name: core.ProviderGmail, messages: testMessages()}
	p := newTestPipeline(provider, &fakeLLM{response: "I'm sorry, I can't help with that."}, Options{})

	records, err := p.Insights(context.Background(), core.InsightRequest{Provider: core.ProviderGmail})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestRequesterTimeoutYieldsEmpty(t *testing.T) {
	llm := &fakeLLM{response: "[]", delay: time.Second}
	r := NewInsightRequester(llm, 20*time.Millisecond, zap.NewNop())

	text, err := r.Request(context.Background(), []core.AIReadableMessage{{ID: "1"}})
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestRequesterCallerCancellationIsError(t *testing.T) {
	llm := &fakeLLM{response: "[]", delay: time.Second}
	r := NewInsightRequester(llm, time.Minute, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Request(ctx, []core.AIReadableMessage{{ID: "1"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRequesterEmptyBatch(t *testing.T) {
	llm := &fakeLLM{response: "[]"}
	text, err := NewInsightRequester(llm, 0, zap.NewNop()).Request(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "", text)
	assert.Equal(t, 0, llm.calls())
}

func TestMessagesAndSummary(t *testing.T) {
	provider := &fakeProvider{name: core.ProviderGmail, messages: testMessages()}
	p := newTestPipeline(provider, &fakeLLM{}, Options{})

	msgs, err := p.Messages(context.Background(), core.InsightRequest{Provider: core.ProviderGmail})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "new", msgs[0].ID)

	summary := Summarize(msgs)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.ByType[core.TypeReceipt])
	assert.Equal(t, 1, summary.ByType[core.TypePersonal])
	assert.Equal(t, 0, summary.ByType[core.TypeBill])
	assert.Equal(t, 1, summary.WithAmount)

	receipts := FilterByType(msgs, core.TypeReceipt)
	require.Len(t, receipts, 1)
	assert.Equal(t, "old", receipts[0].ID)
	assert.Len(t, FilterByType(msgs, ""), 2)
}
