package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ServiceOptions tunes caching in InsightService
type ServiceOptions struct {
	CacheEnabled bool
	CacheTTL     time.Duration
	SingleFlight bool
}

// InsightService merges email and bank insights and caches the result per
// user and provider
type InsightService struct {
	email  EmailInsightSource
	bank   BankInsightSource
	cache  CacheRepository
	store  InsightStore
	logger *zap.Logger
	opts   ServiceOptions
	group  singleflight.Group
	now    func() time.Time
}

// NewInsightService creates a new insight service. bank, cache and store may be nil.
func NewInsightService(
	email EmailInsightSource,
	bank BankInsightSource,
	cache CacheRepository,
	store InsightStore,
	logger *zap.Logger,
	opts ServiceOptions,
) *InsightService {
	return &InsightService{
		email:  email,
		bank:   bank,
		cache:  cache,
		store:  store,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for cache freshness
func (s *InsightService) WithClock(now func() time.Time) *InsightService {
	s.now = now
	return s
}

// GetOrCompute returns the cached insights for the request's user and
// provider, or runs both sources and caches the merged list.
func (s *InsightService) GetOrCompute(ctx context.Context, req InsightRequest) ([]InsightRecord, error) {
	key := CacheKey{UserIdentity: req.UserIdentity, Provider: req.Provider}

	if records, ok := s.lookup(ctx, key); ok {
		return records, nil
	}

	if !s.opts.SingleFlight {
		return s.compute(ctx, key, req)
	}

	// The shared computation outlives any single caller; each caller only
	// stops waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key.String(), func() (interface{}, error) {
		if records, ok := s.lookup(shared, key); ok {
			return records, nil
		}
		return s.compute(shared, key, req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("Joined in-flight computation", zap.String("key", key.String()))
		}
		return CloneRecords(res.Val.([]InsightRecord)), nil
	}
}

// Invalidate drops the cached entry for a user and provider
func (s *InsightService) Invalidate(ctx context.Context, key CacheKey) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return nil
}

// History returns persisted insight batches, newest first
func (s *InsightService) History(ctx context.Context, userIdentity string, provider Provider, limit int) ([]StoredInsights, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.List(ctx, userIdentity, provider, limit)
}

func (s *InsightService) lookup(ctx context.Context, key CacheKey) ([]InsightRecord, bool) {
	if !s.opts.CacheEnabled || s.cache == nil {
		return nil, false
	}

	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("Cache lookup failed", zap.String("key", key.String()), zap.Error(err))
		}
		return nil, false
	}
	if !entry.FreshAt(s.now()) {
		s.logger.Debug("Cache entry expired", zap.String("key", key.String()))
		return nil, false
	}

	s.logger.Debug("Cache hit", zap.String("key", key.String()), zap.Int("count", len(entry.Payload)))
	return CloneRecords(entry.Payload), true
}

// compute runs both sources concurrently and waits for both to settle. A
// failing source contributes nothing; only a double failure is an error.
func (s *InsightService) compute(ctx context.Context, key CacheKey, req InsightRequest) ([]InsightRecord, error) {
	var (
		emailRecords, bankRecords []InsightRecord
		emailErr, bankErr         error
		g                         errgroup.Group
	)

	g.Go(func() error {
		emailRecords, emailErr = s.email.Insights(ctx, req)
		return nil
	})
	g.Go(func() error {
		bankRecords, bankErr = s.bankInsights(ctx, req.UserIdentity)
		return nil
	})
	_ = g.Wait()

	if emailErr != nil {
		s.logger.Warn("Email insight source failed",
			zap.String("provider", string(req.Provider)),
			zap.Error(emailErr))
	}
	if bankErr != nil {
		s.logger.Warn("Bank insight source failed", zap.Error(bankErr))
	}
	if emailErr != nil && bankErr != nil {
		return nil, fmt.Errorf("%w: email: %v; bank: %v", ErrAllSourcesFailed, emailErr, bankErr)
	}

	merged := make([]InsightRecord, 0, len(emailRecords)+len(bankRecords))
	merged = append(merged, emailRecords...)
	merged = append(merged, bankRecords...)

	now := s.now()
	if s.opts.CacheEnabled && s.cache != nil {
		entry := &CacheEntry{
			Key:       key,
			CreatedAt: now,
			TTL:       s.opts.CacheTTL,
			Payload:   CloneRecords(merged),
		}
		if err := s.cache.Set(ctx, entry); err != nil {
			s.logger.Error("Failed to update cache", zap.String("key", key.String()), zap.Error(err))
		}
	}

	s.persist(ctx, key, merged, now)

	s.logger.Info("Computed insights",
		zap.String("provider", string(req.Provider)),
		zap.Int("email_count", len(emailRecords)),
		zap.Int("bank_count", len(bankRecords)))

	return merged, nil
}

func (s *InsightService) bankInsights(ctx context.Context, userIdentity string) ([]InsightRecord, error) {
	if s.bank == nil {
		return []InsightRecord{}, nil
	}
	text, err := s.bank.FetchInsights(ctx, userIdentity)
	if err != nil {
		return nil, err
	}
	return NormalizeText(text), nil
}

func (s *InsightService) persist(ctx context.Context, key CacheKey, records []InsightRecord, at time.Time) {
	if s.store == nil || len(records) == 0 {
		return
	}
	batch := &StoredInsights{
		UserIdentity: key.UserIdentity,
		Provider:     key.Provider,
		Records:      CloneRecords(records),
		CreatedAt:    at,
	}
	if err := s.store.Append(ctx, batch); err != nil {
		s.logger.Error("Failed to persist insights", zap.String("key", key.String()), zap.Error(err))
	}
}
