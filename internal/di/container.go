package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/config"
	"github.com/mikey/insight-pipeline/internal/core"
	"github.com/mikey/insight-pipeline/internal/factory"
	"github.com/mikey/insight-pipeline/internal/logging"
	"github.com/mikey/insight-pipeline/internal/pipeline"
	"github.com/mikey/insight-pipeline/internal/ports"
	"github.com/mikey/insight-pipeline/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideComponents(container); err != nil {
		return nil, err
	}

	// Register HTTP server
	if err := container.Provide(func(f *factory.ServerFactory, service *core.InsightService, p *pipeline.EmailPipeline) (ports.Server, error) {
		return f.CreateServer(service, p)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideComponents registers everything between configuration and the
// outer surface. It expects *config.Config and *zap.Logger to be provided.
func provideComponents(container *dig.Container) error {
	// Register factories
	for _, constructor := range []interface{}{
		factory.NewPipelineFactory,
		factory.NewLLMFactory,
		factory.NewCacheFactory,
		factory.NewStoreFactory,
		factory.NewBankFactory,
		factory.NewProviderFactory,
		factory.NewServerFactory,
	} {
		if err := container.Provide(constructor); err != nil {
			return err
		}
	}

	// Register text processor
	if err := container.Provide(func(f *factory.PipelineFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register LLM client
	if err := container.Provide(func(f *factory.LLMFactory) (core.LLMClient, error) {
		return f.CreateLLMClient()
	}); err != nil {
		return err
	}

	// Register mail providers
	if err := container.Provide(func(f *factory.ProviderFactory) ([]core.MailProvider, error) {
		return f.CreateMailProviders()
	}); err != nil {
		return err
	}

	// Register bank source
	if err := container.Provide(func(f *factory.BankFactory, llm core.LLMClient) (core.BankInsightSource, error) {
		return f.CreateBankSource(llm)
	}); err != nil {
		return err
	}

	// Register cache repository and its service options.
	// A disabled cache is registered as a nil repository.
	if err := container.Provide(func(f *factory.CacheFactory) (core.CacheRepository, error) {
		return f.CreateCacheRepository()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.CacheFactory) (core.ServiceOptions, error) {
		return f.ServiceOptions()
	}); err != nil {
		return err
	}

	// Register insight history store
	if err := container.Provide(func(f *factory.StoreFactory) (core.InsightStore, error) {
		return f.CreateInsightStore()
	}); err != nil {
		return err
	}

	// Register email pipeline
	if err := container.Provide(func(
		f *factory.PipelineFactory,
		providers []core.MailProvider,
		llm core.LLMClient,
		textProcessor *utils.TextProcessor,
	) (*pipeline.EmailPipeline, error) {
		return f.CreateEmailPipeline(providers, llm, textProcessor)
	}); err != nil {
		return err
	}

	// Register insight service
	return container.Provide(func(
		p *pipeline.EmailPipeline,
		bank core.BankInsightSource,
		cache core.CacheRepository,
		store core.InsightStore,
		logger *zap.Logger,
		opts core.ServiceOptions,
	) *core.InsightService {
		return core.NewInsightService(p, bank, cache, store, logger, opts)
	})
}
