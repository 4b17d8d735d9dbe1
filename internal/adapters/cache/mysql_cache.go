package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name: "mysql",
	createTable: `
		CREATE TABLE IF NOT EXISTS insight_cache (
			cache_key VARCHAR(512) PRIMARY KEY,
			user_identity VARCHAR(255) NOT NULL,
			provider VARCHAR(32) NOT NULL,
			created_at BIGINT NOT NULL,
			ttl_ms BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			payload LONGTEXT NOT NULL,
			INDEX idx_insight_cache_expires_at (expires_at)
		)
	`,
	upsert: `
		INSERT INTO insight_cache
			(cache_key, user_identity, provider, created_at, ttl_ms, expires_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			created_at = VALUES(created_at),
			ttl_ms = VALUES(ttl_ms),
			expires_at = VALUES(expires_at),
			payload = VALUES(payload)
	`,
}

// NewMySQLCache creates a new MySQL cache
func NewMySQLCache(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	return newSQLCache(db, mysqlDialect, logger, cleanupFreq)
}
