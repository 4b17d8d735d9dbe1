package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEmailSource struct {
	calls   atomic.Int32
	records []InsightRecord
	err     error
	delay   time.Duration
}

func (f *fakeEmailSource) Insights(ctx context.Context, req InsightRequest) ([]InsightRecord, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return CloneRecords(f.records), nil
}

type fakeBank struct {
	calls atomic.Int32
	text  string
	err   error
}

func (f *fakeBank) FetchInsights(ctx context.Context, userIdentity string) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]*CacheEntry
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]*CacheEntry{}}
}

func (c *mapCache) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return nil, ErrCacheMiss
	}
	return e, nil
}

func (c *mapCache) Set(ctx context.Context, entry *CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Key.String()] = entry
	return nil
}

func (c *mapCache) Delete(ctx context.Context, key CacheKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key.String())
	return nil
}

func (c *mapCache) Cleanup(ctx context.Context) error { return nil }

type memStore struct {
	mu      sync.Mutex
	batches []StoredInsights
}

func (s *memStore) Append(ctx context.Context, batch *StoredInsights) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, *batch)
	return nil
}

func (s *memStore) List(ctx context.Context, userIdentity string, provider Provider, limit int) ([]StoredInsights, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StoredInsights{}, s.batches...), nil
}

var testRequest = InsightRequest{UserIdentity: "user@example.com", Provider: ProviderGmail, Token: "tok", MaxResults: 10}

func bankText(t *testing.T, titles ...string) string {
	t.Helper()
	items := make([]map[string]string, 0, len(titles))
	for _, title := range titles {
		items = append(items, map[string]string{"title": title, "kind": "goal"})
	}
	data, err := json.Marshal(map[string]interface{}{"insights": items})
	require.NoError(t, err)
	return "```json\n" + string(data) + "\n```"
}

func TestGetOrComputeMergesBothSources(t *testing.T) {
	email := &fakeEmailSource{records: sampleRecords()}
	bank := &fakeBank{text: bankText(t, "Save more")}
	svc := NewInsightService(email, bank, nil, nil, zap.NewNop(), ServiceOptions{})

	got, err := svc.GetOrCompute(context.Background(), testRequest)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, sampleRecords(), got[:2])
	assert.Equal(t, "Save more", got[2].Title)
	assert.Equal(t, KindGoal, got[2].Kind)
}

func TestGetOrComputeBankFailureKeepsEmailRecords(t *testing.T) {
	email := &fakeEmailSource{records: sampleRecords()}
	bank := &fakeBank{err: errors.New("bank down")}
	svc := NewInsightService(email, bank, nil, nil, zap.NewNop(), ServiceOptions{})

	got, err := svc.GetOrCompute(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), got)
}

func TestGetOrComputeEmailFailureKeepsBankRecords(t *testing.T) {
	email := &fakeEmailSource{err: errors.New("token expired")}
	bank := &fakeBank{text: bankText(t, "a", "b")}
	svc := NewInsightService(email, bank, nil, nil, zap.NewNop(), ServiceOptions{})

	got, err := svc.GetOrCompute(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestGetOrComputeBothFail(t *testing.T) {
	cache := newMapCache()
	email := &fakeEmailSource{err: errors.New("email down")}
	bank := &fakeBank{err: errors.New("bank down")}
	svc := NewInsightService(email, bank, cache, nil, zap.NewNop(), ServiceOptions{CacheEnabled: true, CacheTTL: time.Minute})

	_, err := svc.GetOrCompute(context.Background(), testRequest)
	require.ErrorIs(t, err, ErrAllSourcesFailed)
	assert.Empty(t, cache.entries)
}

func TestGetOrComputeUnparseableBankTextIsEmpty(t *testing.T) {
	email := &fakeEmailSource{records: sampleRecords()[:1]}
	bank := &fakeBank{text: "I could not find any insights, sorry."}
	svc := NewInsightService(email, bank, nil, nil, zap.NewNop(), ServiceOptions{})

	got, err := svc.GetOrCompute(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGetOrComputeRunsSourcesConcurrently(t *testing.T) {
	email := &fakeEmailSource{records: sampleRecords(), delay: 200 * time.Millisecond}
	bank := &slowBank{delay: 200 * time.Millisecond, text: bankText(t, "x")}
	svc := NewInsightService(email, bank, nil, nil, zap.NewNop(), ServiceOptions{})

	start := time.Now()
	got, err := svc.GetOrCompute(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Less(t, time.Since(start), 390*time.Millisecond)
}

type slowBank struct {
	delay time.Duration
	text  string
}

func (b *slowBank) FetchInsights(ctx context.Context, userIdentity string) (string, error) {
	time.Sleep(b.delay)
	return b.text, nil
}

func TestGetOrComputeCacheFreshness(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	email := &fakeEmailSource{records: sampleRecords()}
	bank := &fakeBank{text: bankText(t, "goal")}
	cache := newMapCache()
	svc := NewInsightService(email, bank, cache, nil, zap.NewNop(), ServiceOptions{
		CacheEnabled: true,
		CacheTTL:     30 * time.Minute,
	}).WithClock(clock)

	first, err := svc.GetOrCompute(context.Background(), testRequest)
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)

	now = now.Add(29 * time.Minute)
	second, err := svc.GetOrCompute(context.Background(), testRequest)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)

	assert.Equal(t, firstJSON, secondJSON)
	assert.Equal(t, int32(1), email.calls.Load())
	assert.Equal(t, int32(1), bank.calls.Load())

	now = now.Add(2 * time.Minute)
	_, err = svc.GetOrCompute(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, int32(2), email.calls.Load())
	assert.Equal(t, int32(2), bank.calls.Load())

	entry, err := cache.Get(context.Background(), CacheKey{UserIdentity: testRequest.UserIdentity, Provider: ProviderGmail})
	require.NoError(t, err)
	assert.Equal(t, now, entry.CreatedAt)
}

func TestGetOrComputeCachedPayloadIsNotAliased(t *testing.T) {
	email := &fakeEmailSource{records: sampleRecords()}
	svc := NewInsightService(email, nil, newMapCache(), nil, zap.NewNop(), ServiceOptions{
		CacheEnabled: true,
		CacheTTL:     time.Hour,
	})

	first, err := svc.GetOrCompute(context.Background(), testRequest)
	require.NoError(t, err)
	first[0].Title = "mutated"
	first[0].AIHeader.Bullets[0] = "mutated"

	second, err := svc.GetOrCompute(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), second)
}

func TestGetOrComputeKeysByUserAndProvider(t *testing.T) {
	email := &fakeEmailSource{records: sampleRecords()}
	svc := NewInsightService(email, nil, newMapCache(), nil, zap.NewNop(), ServiceOptions{
		CacheEnabled: true,
		CacheTTL:     time.Hour,
	})

	ctx := context.Background()
	_, err := svc.GetOrCompute(ctx, testRequest)
	require.NoError(t, err)

	other := testRequest
	other.Provider = ProviderOutlook
	_, err = svc.GetOrCompute(ctx, other)
	require.NoError(t, err)

	other.UserIdentity = "someone@example.com"
	_, err = svc.GetOrCompute(ctx, other)
	require.NoError(t, err)

	_, err = svc.GetOrCompute(ctx, testRequest)
	require.NoError(t, err)
	assert.Equal(t, int32(3), email.calls.Load())
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	email := &fakeEmailSource{records: sampleRecords(), delay: 100 * time.Millisecond}
	svc := NewInsightService(email, nil, newMapCache(), nil, zap.NewNop(), ServiceOptions{
		CacheEnabled: true,
		CacheTTL:     time.Hour,
		SingleFlight: true,
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.GetOrCompute(context.Background(), testRequest)
			assert.NoError(t, err)
			assert.Len(t, got, 2)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), email.calls.Load())
}

type gatedEmailSource struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	records []InsightRecord
}

func (g *gatedEmailSource) Insights(ctx context.Context, req InsightRequest) ([]InsightRecord, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.release:
		return CloneRecords(g.records), nil
	}
}

func TestGetOrComputeLeaderCancelDoesNotFailJoiners(t *testing.T) {
	email := &gatedEmailSource{
		started: make(chan struct{}),
		release: make(chan struct{}),
		records: sampleRecords(),
	}
	bank := &fakeBank{text: bankText(t, "Save more")}
	svc := NewInsightService(email, bank, newMapCache(), nil, zap.NewNop(), ServiceOptions{
		CacheEnabled: true,
		CacheTTL:     time.Hour,
		SingleFlight: true,
	})

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.GetOrCompute(leaderCtx, testRequest)
		leaderErr <- err
	}()
	<-email.started

	type result struct {
		records []InsightRecord
		err     error
	}
	joiner := make(chan result, 1)
	go func() {
		records, err := svc.GetOrCompute(context.Background(), testRequest)
		joiner <- result{records, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(email.release)
	got := <-joiner
	require.NoError(t, got.err)
	assert.Len(t, got.records, 3)
	assert.Equal(t, int32(1), email.calls.Load())
}

func TestGetOrComputePersistsAndInvalidates(t *testing.T) {
	email := &fakeEmailSource{records: sampleRecords()}
	store := &memStore{}
	cache := newMapCache()
	svc := NewInsightService(email, nil, cache, store, zap.NewNop(), ServiceOptions{
		CacheEnabled: true,
		CacheTTL:     time.Hour,
	})

	ctx := context.Background()
	_, err := svc.GetOrCompute(ctx, testRequest)
	require.NoError(t, err)

	history, err := svc.History(ctx, testRequest.UserIdentity, ProviderGmail, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, sampleRecords(), history[0].Records)

	require.NoError(t, svc.Invalidate(ctx, CacheKey{UserIdentity: testRequest.UserIdentity, Provider: ProviderGmail}))
	_, err = svc.GetOrCompute(ctx, testRequest)
	require.NoError(t, err)
	assert.Equal(t, int32(2), email.calls.Load())
}

func TestHistoryWithoutStore(t *testing.T) {
	svc := NewInsightService(&fakeEmailSource{}, nil, nil, nil, zap.NewNop(), ServiceOptions{})
	_, err := svc.History(context.Background(), "u", ProviderGmail, 1)
	assert.ErrorIs(t, err, ErrNoStore)
}
