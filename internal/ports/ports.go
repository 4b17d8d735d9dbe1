// Package ports declares what the outer transports need from the core.
package ports

import (
	"context"

	"github.com/mikey/insight-pipeline/internal/core"
)

// InsightService produces, invalidates and lists merged insights
type InsightService interface {
	GetOrCompute(ctx context.Context, req core.InsightRequest) ([]core.InsightRecord, error)
	Invalidate(ctx context.Context, key core.CacheKey) error
	History(ctx context.Context, userIdentity string, provider core.Provider, limit int) ([]core.StoredInsights, error)
}

// MessageSource lists a mailbox in its AI-readable form
type MessageSource interface {
	Messages(ctx context.Context, req core.InsightRequest) ([]core.AIReadableMessage, error)
}

// Server is a long-running transport in front of the insight service
type Server interface {
	// Start serves until Stop is called
	Start() error

	// Stop shuts the server down gracefully
	Stop(ctx context.Context) error
}
