// Package bank provides the bank-transaction insight collaborators.
package bank

import (
	"context"
	"fmt"
	"os"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/core"
)

const systemPrompt = "You are a senior financial analyst. Respond with a single valid JSON array only, no text and no markdown."

const transactionPromptFormat = `Given the following bank transactions, return 3 to 8 insight objects.
Each object must have these fields:
- id: string, the purchase id or "ins::<kind>::<merchant>::<YYYY-MM>"
- kind: one of "subscription", "bill", "anomaly", "goal", "advice"
- title: short user-facing title
- merchantOrBill: merchant or biller name
- amount: number rounded to 2 decimals
- date: "YYYY-MM-DDTHH:MM:SSZ"
- account: account the charge was made on
- category: spending category
- delta30: current amount minus the 30 day average, 0 when unknown
- delta90: current amount minus the 90 day average, 0 when unknown
- aiHeader: object with bullets (at most 3 strings), nextStep (string),
  badges (at most 3 of "priority", "priceUp", "duplicateSub", "dueSoon", "anomaly")
  and confidence (number between 0 and 1)

Detector hints:
- subscription: recurring similar amounts on a monthly or weekly cadence
- bill: utilities or telecom with a monthly cadence, add "dueSoon" when due within 7 days
- anomaly: at least 2.5 times the average or several same-day charges
- goal: savings transfers or a growing balance
- advice: overlapping services such as several streaming plans

Use only the provided transactions. Return the JSON array only.

Transactions:
%s`

// LoadTransactions reads a JSON array of transactions, or an object with a
// "transactions" array, from path. An empty path yields no transactions.
func LoadTransactions(path string) ([]json.RawMessage, error) {
	if path == "" {
		return []json.RawMessage{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transactions file: %w", err)
	}

	if list, dt, _, err := jsonparser.Get(data, "transactions"); err == nil && dt == jsonparser.Array {
		data = list
	}

	var txs []json.RawMessage
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("failed to decode transactions file: %w", err)
	}
	return txs, nil
}

// NoneSource is a bank source with nothing to report
type NoneSource struct{}

// FetchInsights implements core.BankInsightSource
func (NoneSource) FetchInsights(ctx context.Context, userIdentity string) (string, error) {
	return "", nil
}

// Analyzer asks the LLM for insights about a fixed transaction set
type Analyzer struct {
	llm          core.LLMClient
	transactions []json.RawMessage
	logger       *zap.Logger
}

// NewAnalyzer creates a new Analyzer
func NewAnalyzer(llm core.LLMClient, transactions []json.RawMessage, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		llm:          llm,
		transactions: transactions,
		logger:       logger,
	}
}

// FetchInsights implements core.BankInsightSource
func (a *Analyzer) FetchInsights(ctx context.Context, userIdentity string) (string, error) {
	if len(a.transactions) == 0 {
		return "", nil
	}

	payload, err := json.MarshalIndent(a.transactions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal transactions: %w", err)
	}

	text, err := a.llm.Complete(ctx, &core.CompletionRequest{
		System: systemPrompt,
		Prompt: fmt.Sprintf(transactionPromptFormat, payload),
	})
	if err != nil {
		return "", fmt.Errorf("failed to analyze transactions: %w", err)
	}

	a.logger.Debug("Analyzed bank transactions",
		zap.Int("transactions", len(a.transactions)),
		zap.Int("response_size", len(text)))
	return text, nil
}
