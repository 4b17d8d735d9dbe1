// Package store persists merged insight batches for later review.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/core"
)

const defaultListLimit = 10

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS financial_insights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_identity TEXT NOT NULL,
		provider TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		results TEXT NOT NULL
	)
`

const mysqlSchema = `
	CREATE TABLE IF NOT EXISTS financial_insights (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_identity VARCHAR(255) NOT NULL,
		provider VARCHAR(32) NOT NULL,
		created_at BIGINT NOT NULL,
		results LONGTEXT NOT NULL,
		INDEX idx_financial_insights_user (user_identity, provider, created_at)
	)
`

// SQLStore is a database/sql implementation of the InsightStore interface
type SQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the insight history at dbPath
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_financial_insights_user ON financial_insights(user_identity, provider, created_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &SQLStore{db: db, logger: logger}, nil
}

// NewMySQLStore connects to the insight history at dsn
func NewMySQLStore(dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}
	if _, err := db.Exec(mysqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SQLStore{db: db, logger: logger}, nil
}

// Append stores one merged batch
func (s *SQLStore) Append(ctx context.Context, batch *core.StoredInsights) error {
	results, err := json.Marshal(batch.Records)
	if err != nil {
		return fmt.Errorf("failed to encode insights: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO financial_insights (user_identity, provider, created_at, results)
		VALUES (?, ?, ?, ?)
	`, batch.UserIdentity, string(batch.Provider), batch.CreatedAt.UnixMilli(), string(results))
	if err != nil {
		return fmt.Errorf("failed to insert insights: %w", err)
	}

	s.logger.Debug("Stored insight batch",
		zap.String("provider", string(batch.Provider)),
		zap.Int("count", len(batch.Records)))
	return nil
}

// List returns the newest batches for a user and provider, newest first
func (s *SQLStore) List(ctx context.Context, userIdentity string, provider core.Provider, limit int) ([]core.StoredInsights, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at, results
		FROM financial_insights
		WHERE user_identity = ? AND provider = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userIdentity, string(provider), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query insights: %w", err)
	}
	defer rows.Close()

	batches := []core.StoredInsights{}
	for rows.Next() {
		var createdAt int64
		var results string
		if err := rows.Scan(&createdAt, &results); err != nil {
			return nil, fmt.Errorf("failed to scan insights: %w", err)
		}

		var records []core.InsightRecord
		if err := json.Unmarshal([]byte(results), &records); err != nil {
			s.logger.Warn("Skipping unreadable insight batch", zap.Error(err))
			continue
		}

		batches = append(batches, core.StoredInsights{
			UserIdentity: userIdentity,
			Provider:     provider,
			Records:      records,
			CreatedAt:    time.UnixMilli(createdAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read insights: %w", err)
	}
	return batches, nil
}

// Stop closes the database connection
func (s *SQLStore) Stop() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close insight store", zap.Error(err))
	}
}
