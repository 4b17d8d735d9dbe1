package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"

	"github.com/mikey/insight-pipeline/internal/config"
	"github.com/mikey/insight-pipeline/internal/core"
	"github.com/mikey/insight-pipeline/internal/ports"
)

func TestBuildContainerWiresServer(t *testing.T) {
	t.Setenv("INSIGHTS_OPENAI_API_KEY", "sk-test")
	t.Setenv("INSIGHTS_CACHE_ENABLED", "false")

	container, err := BuildContainer()
	require.NoError(t, err)

	err = container.Invoke(func(server ports.Server, service *core.InsightService) {
		assert.NotNil(t, server)
		assert.NotNil(t, service)
	})
	require.NoError(t, err)
}

func TestBuildCLIContainerFromFlags(t *testing.T) {
	flags := &CLIFlags{
		LLMProvider: "openrouter",
		APIKey:      "sk-test",
		ModelName:   "openai/gpt-4o-mini",
		Temperature: -1,
		SkipTypes:   []string{"newsletter"},
		BankMode:    "none",
	}

	container, err := BuildCLIContainer(flags)
	require.NoError(t, err)

	err = container.Invoke(func(cfg *config.Config, cache core.CacheRepository, store core.InsightStore, service *core.InsightService) {
		assert.Equal(t, "sk-test", cfg.GetOpenAI().APIKey)
		assert.Equal(t, "openai/gpt-4o-mini", cfg.GetOpenAI().ModelName)
		assert.InDelta(t, 0.2, cfg.GetOpenAI().Temperature, 1e-6)
		assert.Equal(t, []string{"newsletter"}, cfg.GetPipeline().SkipTypes)
		assert.Nil(t, cache)
		assert.Nil(t, store)
		assert.NotNil(t, service)
	})
	require.NoError(t, err)
}

func TestBuildCLIContainerMissingCredentials(t *testing.T) {
	container, err := BuildCLIContainer(&CLIFlags{LLMProvider: "gemini", Temperature: -1, BankMode: "none"})
	require.NoError(t, err)

	err = container.Invoke(func(llm core.LLMClient) {})
	assert.ErrorIs(t, dig.RootCause(err), core.ErrMissingCredentials)
}
