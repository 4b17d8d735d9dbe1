// Package provider holds the mail provider adapters.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/insight-pipeline/internal/core"
)

const defaultConcurrency = 5

// Options are shared by the provider adapters
type Options struct {
	// Concurrency bounds parallel per-message fetches
	Concurrency int
	// BreakerMaxFailures consecutive list failures open the breaker
	BreakerMaxFailures uint32
	// BreakerTimeout is how long the breaker stays open
	BreakerTimeout time.Duration
	// HTTPClient is the base client for provider calls; nil uses http.DefaultClient
	HTTPClient *http.Client
}

// APIError is a non-2xx response from a provider API
type APIError struct {
	Provider   core.Provider
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// IsClientError reports whether err is a 4xx provider response, which
// usually means a bad or expired token
func IsClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

func newBreaker(p core.Provider, opts Options, logger *zap.Logger) *gobreaker.CircuitBreaker {
	maxFailures := opts.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    string(p),
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// one user's bad token must not open the breaker for everyone
		IsSuccessful: func(err error) bool {
			return err == nil || IsClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Provider circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// bearerClient returns an HTTP client that authorizes requests with token
func bearerClient(ctx context.Context, base *http.Client, token string) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
}

// fetchEach loads every id with bounded concurrency. Failed loads are logged
// and dropped; the remaining messages keep the order of ids.
func fetchEach(
	ids []string,
	concurrency int,
	logger *zap.Logger,
	fetch func(id string) (core.RawMessage, error),
) []core.RawMessage {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	results := make([]*core.RawMessage, len(ids))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			msg, err := fetch(id)
			if err != nil {
				logger.Warn("Skipping message that failed to load", zap.String("message_id", id), zap.Error(err))
				return nil
			}
			results[i] = &msg
			return nil
		})
	}
	_ = g.Wait()

	messages := make([]core.RawMessage, 0, len(ids))
	for _, m := range results {
		if m != nil {
			messages = append(messages, *m)
		}
	}
	return messages
}
