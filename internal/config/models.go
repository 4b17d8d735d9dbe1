package config

import "time"

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
	Timeout  time.Duration
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for an OpenAI-compatible API
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// MailConfig represents the mail provider settings
type MailConfig struct {
	MaxResults         int
	Concurrency        int
	GmailEndpoint      string
	OutlookBaseURL     string
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

// PipelineConfig represents the message pipeline settings
type PipelineConfig struct {
	SkipTypes      []string
	IgnoredDomains []string
	MaxContentSize int
	SummarySize    int
}

// BankConfig represents the bank-transaction collaborator settings
type BankConfig struct {
	Mode             string
	BackendURL       string
	TransactionsFile string
}

// CacheConfig represents the insight cache settings
type CacheConfig struct {
	Type             string
	Enabled          bool
	TTL              time.Duration
	CleanupFrequency time.Duration
	SingleFlight     bool
	SQLitePath       string
	MySQLDSN         string
}

// StoreConfig represents the insight history settings
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// ServerConfig represents the HTTP API settings
type ServerConfig struct {
	ListenAddress string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() (LLMConfig, error) {
	timeout, err := c.GetDuration("llm.timeout")
	if err != nil {
		return LLMConfig{}, err
	}
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
		Timeout:  timeout,
	}, nil
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetMail returns the mail provider configuration
func (c *Config) GetMail() (MailConfig, error) {
	timeout, err := c.GetDuration("mail.breaker.timeout")
	if err != nil {
		return MailConfig{}, err
	}
	return MailConfig{
		MaxResults:         c.GetInt("mail.max_results"),
		Concurrency:        c.GetInt("mail.concurrency"),
		GmailEndpoint:      c.GetString("mail.gmail.endpoint"),
		OutlookBaseURL:     c.GetString("mail.outlook.base_url"),
		BreakerMaxFailures: uint32(c.GetInt("mail.breaker.max_failures")),
		BreakerTimeout:     timeout,
	}, nil
}

// GetPipeline returns the pipeline configuration
func (c *Config) GetPipeline() PipelineConfig {
	return PipelineConfig{
		SkipTypes:      c.GetStringSlice("pipeline.skip_types"),
		IgnoredDomains: c.GetStringSlice("pipeline.ignored_domains"),
		MaxContentSize: c.GetInt("pipeline.max_content_size"),
		SummarySize:    c.GetInt("pipeline.summary_size"),
	}
}

// GetBank returns the bank collaborator configuration
func (c *Config) GetBank() BankConfig {
	return BankConfig{
		Mode:             c.GetString("bank.mode"),
		BackendURL:       c.GetString("bank.backend_url"),
		TransactionsFile: c.GetString("bank.transactions_file"),
	}
}

// GetCache returns the cache configuration
func (c *Config) GetCache() (CacheConfig, error) {
	ttl, err := c.GetDuration("cache.ttl")
	if err != nil {
		return CacheConfig{}, err
	}
	cleanup, err := c.GetDuration("cache.cleanup_frequency")
	if err != nil {
		return CacheConfig{}, err
	}
	return CacheConfig{
		Type:             c.GetString("cache.type"),
		Enabled:          c.GetBool("cache.enabled"),
		TTL:              ttl,
		CleanupFrequency: cleanup,
		SingleFlight:     c.GetBool("cache.single_flight"),
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
	}, nil
}

// GetStore returns the insight history configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetServer returns the HTTP server configuration
func (c *Config) GetServer() (ServerConfig, error) {
	read, err := c.GetDuration("server.read_timeout")
	if err != nil {
		return ServerConfig{}, err
	}
	write, err := c.GetDuration("server.write_timeout")
	if err != nil {
		return ServerConfig{}, err
	}
	return ServerConfig{
		ListenAddress: c.GetString("server.listen_address"),
		ReadTimeout:   read,
		WriteTimeout:  write,
	}, nil
}
