package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/adapters/server"
	"github.com/mikey/insight-pipeline/internal/config"
	"github.com/mikey/insight-pipeline/internal/ports"
)

// ServerFactory creates the HTTP API server
type ServerFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewServerFactory creates a new server factory
func NewServerFactory(cfg *config.Config, logger *zap.Logger) *ServerFactory {
	return &ServerFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateServer creates the HTTP server in front of the insight service
func (f *ServerFactory) CreateServer(service ports.InsightService, messages ports.MessageSource) (ports.Server, error) {
	serverCfg, err := f.cfg.GetServer()
	if err != nil {
		return nil, err
	}

	return server.NewHTTPServer(service, messages, server.Options{
		ListenAddress: serverCfg.ListenAddress,
		ReadTimeout:   serverCfg.ReadTimeout,
		WriteTimeout:  serverCfg.WriteTimeout,
	}, f.logger), nil
}
