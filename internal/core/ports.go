package core

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss is returned by cache repositories when no live entry exists
	ErrCacheMiss = errors.New("cache entry not found")
	// ErrUnknownProvider is returned for a provider name outside gmail|outlook
	ErrUnknownProvider = errors.New("unknown mail provider")
	// ErrAllSourcesFailed is returned when neither insight source produced a result
	ErrAllSourcesFailed = errors.New("all insight sources failed")
	// ErrMissingCredentials is returned when an LLM provider has no credentials configured
	ErrMissingCredentials = errors.New("missing LLM credentials")
	// ErrNoStore is returned when insight history is requested without a store
	ErrNoStore = errors.New("insight store not configured")
)

// MailProvider fetches raw messages from one mail provider
type MailProvider interface {
	// Name returns the provider this adapter serves
	Name() Provider

	// FetchMessages fetches up to maxResults messages. Messages that fail to
	// load are skipped; only a failing list call returns an error.
	FetchMessages(ctx context.Context, token string, maxResults int) ([]RawMessage, error)
}

// EmailInsightSource runs the email side of the pipeline for one request
type EmailInsightSource interface {
	Insights(ctx context.Context, req InsightRequest) ([]InsightRecord, error)
}

// LLMClient sends a prompt to a language model and returns its raw text
type LLMClient interface {
	Complete(ctx context.Context, req *CompletionRequest) (string, error)
}

// BankInsightSource returns the bank-transaction collaborator's raw insight text
type BankInsightSource interface {
	FetchInsights(ctx context.Context, userIdentity string) (string, error)
}

// CacheRepository defines the interface for caching merged insight lists
type CacheRepository interface {
	// Get retrieves a live entry or ErrCacheMiss
	Get(ctx context.Context, key CacheKey) (*CacheEntry, error)

	// Set stores an entry, replacing any previous one for the key
	Set(ctx context.Context, entry *CacheEntry) error

	// Delete removes an entry
	Delete(ctx context.Context, key CacheKey) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}

// InsightStore persists merged insight lists
type InsightStore interface {
	Append(ctx context.Context, batch *StoredInsights) error
	List(ctx context.Context, userIdentity string, provider Provider, limit int) ([]StoredInsights, error)
}
