package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/adapters/store"
	"github.com/mikey/insight-pipeline/internal/config"
	"github.com/mikey/insight-pipeline/internal/core"
)

// StoreFactory creates insight history stores
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateInsightStore creates the configured store. Type "none" yields nil.
func (f *StoreFactory) CreateInsightStore() (core.InsightStore, error) {
	storeCfg := f.cfg.GetStore()

	switch storeCfg.Type {
	case "", "none":
		return nil, nil
	case "sqlite":
		if err := ensureDir(storeCfg.SQLitePath); err != nil {
			return nil, err
		}
		return store.NewSQLiteStore(storeCfg.SQLitePath, f.logger)
	case "mysql":
		return store.NewMySQLStore(storeCfg.MySQLDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
}
