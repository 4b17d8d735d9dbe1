package factory

import (
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/config"
	"github.com/mikey/insight-pipeline/internal/core"
	"github.com/mikey/insight-pipeline/internal/pipeline"
	"github.com/mikey/insight-pipeline/internal/senderfilter"
	"github.com/mikey/insight-pipeline/internal/utils"
)

// PipelineFactory creates the text processor and the email pipeline
type PipelineFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewPipelineFactory creates a new pipeline factory
func NewPipelineFactory(cfg *config.Config, logger *zap.Logger) *PipelineFactory {
	return &PipelineFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTextProcessor creates a new TextProcessor
func (f *PipelineFactory) CreateTextProcessor() *utils.TextProcessor {
	return utils.NewTextProcessor(f.logger)
}

// CreateEmailPipeline wires providers, conversion and the insight requester
func (f *PipelineFactory) CreateEmailPipeline(
	providers []core.MailProvider,
	llm core.LLMClient,
	textProcessor *utils.TextProcessor,
) (*pipeline.EmailPipeline, error) {
	pipelineCfg := f.cfg.GetPipeline()
	llmCfg, err := f.cfg.GetLLM()
	if err != nil {
		return nil, err
	}
	mailCfg, err := f.cfg.GetMail()
	if err != nil {
		return nil, err
	}

	skipTypes := lo.Map(pipelineCfg.SkipTypes, func(s string, _ int) core.MessageType { return core.MessageType(s) })
	if unknown := lo.Without(skipTypes, core.MessageTypes...); len(unknown) > 0 {
		f.logger.Warn("Ignoring unknown message types in pipeline.skip_types",
			zap.Strings("types", lo.Map(unknown, func(t core.MessageType, _ int) string { return string(t) })))
	}

	return pipeline.NewEmailPipeline(
		providers,
		pipeline.NewConverter(textProcessor, pipelineCfg.MaxContentSize, pipelineCfg.SummarySize),
		pipeline.NewInsightRequester(llm, llmCfg.Timeout, f.logger),
		senderfilter.NewChecker(pipelineCfg.IgnoredDomains, f.logger),
		pipeline.Options{
			DefaultMaxResults: mailCfg.MaxResults,
			SkipTypes:         skipTypes,
		},
		f.logger,
	), nil
}
