package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/config"
	"github.com/mikey/insight-pipeline/internal/logging"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// LLM provider flags
	LLMProvider string
	ModelName   string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	MaxBodySize int
	Timeout     string

	// Bedrock flags
	BedrockRegion string

	// Mail flags
	GmailEndpoint  string
	OutlookBaseURL string

	// Pipeline flags
	SkipTypes      []string
	IgnoredDomains []string

	// Bank flags
	BankMode         string
	BankBackendURL   string
	TransactionsFile string

	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.NewFromFile(flags.ConfigFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}

		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	if err := provideComponents(container); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags.
// One-shot runs never cache or record history.
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	v.Set("cache.enabled", false)
	v.Set("store.type", "none")

	// Set LLM provider
	v.Set("llm.provider", flags.LLMProvider)
	if flags.Timeout != "" {
		v.Set("llm.timeout", flags.Timeout)
	}

	// Set provider-specific configuration
	prefix := flags.LLMProvider
	if prefix == "openrouter" {
		prefix = "openai"
	}
	switch prefix {
	case "bedrock":
		if flags.BedrockRegion != "" {
			v.Set("bedrock.region", flags.BedrockRegion)
		}
		if flags.ModelName != "" {
			v.Set("bedrock.model_id", flags.ModelName)
		}
	case "gemini", "openai":
		if flags.APIKey != "" {
			v.Set(prefix+".api_key", flags.APIKey)
		}
		if flags.ModelName != "" {
			v.Set(prefix+".model_name", flags.ModelName)
		}
		if prefix == "openai" && flags.BaseURL != "" {
			v.Set("openai.base_url", flags.BaseURL)
		}
	}
	if flags.MaxTokens > 0 {
		v.Set(prefix+".max_tokens", flags.MaxTokens)
	}
	if flags.Temperature >= 0 {
		v.Set(prefix+".temperature", flags.Temperature)
	}
	if flags.MaxBodySize > 0 {
		v.Set(prefix+".max_body_size", flags.MaxBodySize)
	}

	// Mail providers
	if flags.GmailEndpoint != "" {
		v.Set("mail.gmail.endpoint", flags.GmailEndpoint)
	}
	if flags.OutlookBaseURL != "" {
		v.Set("mail.outlook.base_url", flags.OutlookBaseURL)
	}

	// Pipeline
	v.Set("pipeline.skip_types", flags.SkipTypes)
	v.Set("pipeline.ignored_domains", flags.IgnoredDomains)

	// Bank collaborator
	if flags.BankMode != "" {
		v.Set("bank.mode", flags.BankMode)
	}
	if flags.BankBackendURL != "" {
		v.Set("bank.backend_url", flags.BankBackendURL)
	}
	v.Set("bank.transactions_file", flags.TransactionsFile)

	return config.NewFromViper(v)
}
