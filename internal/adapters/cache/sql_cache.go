package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/core"
)

// dialect holds the statements that differ between SQL backends
type dialect struct {
	name        string
	createTable string
	createIndex string
	upsert      string
}

// SQLCache is a database/sql implementation of the CacheRepository
// interface. Payloads are stored as JSON; times as unix milliseconds.
type SQLCache struct {
	db       *sql.DB
	dialect  dialect
	logger   *zap.Logger
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newSQLCache(db *sql.DB, d dialect, logger *zap.Logger, cleanupFreq time.Duration) (*SQLCache, error) {
	if _, err := db.Exec(d.createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	if d.createIndex != "" {
		if _, err := db.Exec(d.createIndex); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
	}

	cache := &SQLCache{
		db:      db,
		dialect: d,
		logger:  logger,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go runCleanup(cache, cleanupFreq, cache.stopCh, logger)
	}

	return cache, nil
}

// Get retrieves the entry stored under key
func (c *SQLCache) Get(ctx context.Context, key core.CacheKey) (*core.CacheEntry, error) {
	var createdAt, ttlMs int64
	var payload string

	err := c.db.QueryRowContext(ctx, `
		SELECT created_at, ttl_ms, payload
		FROM insight_cache
		WHERE cache_key = ?
	`, key.String()).Scan(&createdAt, &ttlMs, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	var records []core.InsightRecord
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, fmt.Errorf("failed to decode cached payload: %w", err)
	}

	return &core.CacheEntry{
		Key:       key,
		CreatedAt: time.UnixMilli(createdAt),
		TTL:       time.Duration(ttlMs) * time.Millisecond,
		Payload:   records,
	}, nil
}

// Set stores entry, replacing any previous one for its key
func (c *SQLCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode cache payload: %w", err)
	}

	_, err = c.db.ExecContext(ctx, c.dialect.upsert,
		entry.Key.String(),
		entry.Key.UserIdentity,
		string(entry.Key.Provider),
		entry.CreatedAt.UnixMilli(),
		entry.TTL.Milliseconds(),
		entry.ExpiresAt().UnixMilli(),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// Delete removes a cache entry
func (c *SQLCache) Delete(ctx context.Context, key core.CacheKey) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM insight_cache WHERE cache_key = ?`, key.String()); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Cleanup removes expired entries
func (c *SQLCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM insight_cache WHERE expires_at <= ?`, c.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		c.logger.Debug("Cleaned up expired cache entries",
			zap.String("backend", c.dialect.name),
			zap.Int64("expired_count", rowsAffected))
	}
	return nil
}

// Stop stops the background cleanup task and closes the database connection
func (c *SQLCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close cache database", zap.String("backend", c.dialect.name), zap.Error(err))
		}
	})
}
