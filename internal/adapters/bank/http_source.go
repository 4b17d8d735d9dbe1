package bank

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const maxResponseSize = 4 << 20

// HTTPSource fetches insight text from a remote analysis backend
type HTTPSource struct {
	baseURL      string
	client       *http.Client
	transactions []json.RawMessage
	logger       *zap.Logger
}

type fetchRequest struct {
	Transactions []json.RawMessage `json:"transactions"`
}

// NewHTTPSource creates a new HTTPSource. A nil client uses http.DefaultClient.
func NewHTTPSource(baseURL string, client *http.Client, transactions []json.RawMessage, logger *zap.Logger) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	if transactions == nil {
		transactions = []json.RawMessage{}
	}
	return &HTTPSource{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		transactions: transactions,
		logger:       logger,
	}
}

// FetchInsights implements core.BankInsightSource. A {"result": "..."}
// response yields the inner string; any other body is returned as is.
func (s *HTTPSource) FetchInsights(ctx context.Context, userIdentity string) (string, error) {
	body, err := json.Marshal(fetchRequest{Transactions: s.transactions})
	if err != nil {
		return "", fmt.Errorf("failed to marshal bank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/fetch_insights", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build bank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call bank backend: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read bank response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("bank backend returned status %d: %s", resp.StatusCode, truncate(string(data), 256))
	}

	s.logger.Debug("Fetched bank insights",
		zap.String("user", userIdentity),
		zap.Int("response_size", len(data)))

	if result, err := jsonparser.GetString(data, "result"); err == nil {
		return result, nil
	}
	return string(data), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
