package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/adapters/provider"
	"github.com/mikey/insight-pipeline/internal/config"
	"github.com/mikey/insight-pipeline/internal/core"
)

// ProviderFactory creates the mail provider adapters
type ProviderFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(cfg *config.Config, logger *zap.Logger) *ProviderFactory {
	return &ProviderFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateMailProviders creates one adapter per supported provider
func (f *ProviderFactory) CreateMailProviders() ([]core.MailProvider, error) {
	mailCfg, err := f.cfg.GetMail()
	if err != nil {
		return nil, err
	}

	opts := provider.Options{
		Concurrency:        mailCfg.Concurrency,
		BreakerMaxFailures: mailCfg.BreakerMaxFailures,
		BreakerTimeout:     mailCfg.BreakerTimeout,
	}

	return []core.MailProvider{
		provider.NewGmailProvider(mailCfg.GmailEndpoint, opts, f.logger),
		provider.NewOutlookProvider(mailCfg.OutlookBaseURL, opts, f.logger),
	}, nil
}
