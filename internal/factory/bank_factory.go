package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/adapters/bank"
	"github.com/mikey/insight-pipeline/internal/config"
	"github.com/mikey/insight-pipeline/internal/core"
)

// BankFactory creates the bank-transaction insight source
type BankFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewBankFactory creates a new bank factory
func NewBankFactory(cfg *config.Config, logger *zap.Logger) *BankFactory {
	return &BankFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateBankSource creates the source selected by bank.mode
func (f *BankFactory) CreateBankSource(llm core.LLMClient) (core.BankInsightSource, error) {
	bankCfg := f.cfg.GetBank()

	if bankCfg.Mode == "none" {
		return bank.NoneSource{}, nil
	}

	transactions, err := bank.LoadTransactions(bankCfg.TransactionsFile)
	if err != nil {
		return nil, err
	}
	f.logger.Info("Loaded bank transactions",
		zap.String("mode", bankCfg.Mode),
		zap.Int("count", len(transactions)))

	switch bankCfg.Mode {
	case "llm":
		return bank.NewAnalyzer(llm, transactions, f.logger), nil
	case "http":
		return bank.NewHTTPSource(bankCfg.BackendURL, nil, transactions, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported bank mode: %s", bankCfg.Mode)
	}
}
