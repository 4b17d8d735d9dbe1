package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name: "sqlite",
	createTable: `
		CREATE TABLE IF NOT EXISTS insight_cache (
			cache_key TEXT PRIMARY KEY,
			user_identity TEXT NOT NULL,
			provider TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			ttl_ms INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			payload TEXT NOT NULL
		)
	`,
	createIndex: `CREATE INDEX IF NOT EXISTS idx_insight_cache_expires_at ON insight_cache(expires_at)`,
	upsert: `
		INSERT OR REPLACE INTO insight_cache
			(cache_key, user_identity, provider, created_at, ttl_ms, expires_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
}

// NewSQLiteCache creates a new SQLite cache
func NewSQLiteCache(dbPath string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// sqlite serializes writers
	db.SetMaxOpenConns(1)

	return newSQLCache(db, sqliteDialect, logger, cleanupFreq)
}
