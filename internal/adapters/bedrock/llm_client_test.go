package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/core"
	"github.com/mikey/insight-pipeline/internal/utils"
)

type fakeRuntime struct {
	input *bedrockruntime.InvokeModelInput
	body  string
	err   error
}

func (f *fakeRuntime) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func newClient(runtime InvokeModelAPI, modelID string) *BedrockClient {
	logger := zap.NewNop()
	return NewBedrockClient(runtime, modelID, 1000, 0.2, 0.9, 0, logger, utils.NewTextProcessor(logger))
}

func TestCompleteAnthropic(t *testing.T) {
	runtime := &fakeRuntime{body: `{"content":[{"type":"text","text":"[{\"id\":"},{"type":"text","text":"\"x\"}]"}]}`}
	client := newClient(runtime, "anthropic.claude-3-haiku-20240307-v1:0")

	text, err := client.Complete(context.Background(), &core.CompletionRequest{System: "sys", Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"x"}]`, text)

	var sent anthropicRequest
	require.NoError(t, json.Unmarshal(runtime.input.Body, &sent))
	assert.Equal(t, anthropicVersion, sent.AnthropicVersion)
	assert.Equal(t, "sys", sent.System)
	require.Len(t, sent.Messages, 1)
	assert.Equal(t, "hello", sent.Messages[0].Content[0].Text)
}

func TestCompleteTitan(t *testing.T) {
	runtime := &fakeRuntime{body: `{"results":[{"outputText":"[]"}]}`}
	client := newClient(runtime, "amazon.titan-text-express-v1")

	text, err := client.Complete(context.Background(), &core.CompletionRequest{System: "sys", Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "[]", text)

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(runtime.input.Body, &sent))
	assert.Equal(t, "sys\n\nhello", sent["inputText"])
}

func TestCompleteTitanEmpty(t *testing.T) {
	client := newClient(&fakeRuntime{body: `{"results":[]}`}, "amazon.titan-text-express-v1")
	_, err := client.Complete(context.Background(), &core.CompletionRequest{Prompt: "hello"})
	assert.Error(t, err)
}

func TestCompleteGenericFallsBackToBody(t *testing.T) {
	client := newClient(&fakeRuntime{body: `{"generation":"[1]"}`}, "meta.llama3-8b-instruct-v1:0")
	text, err := client.Complete(context.Background(), &core.CompletionRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "[1]", text)

	client = newClient(&fakeRuntime{body: `plain words`}, "meta.llama3-8b-instruct-v1:0")
	text, err = client.Complete(context.Background(), &core.CompletionRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "plain words", text)
}

func TestCompleteInvokeError(t *testing.T) {
	invokeErr := errors.New("throttled")
	client := newClient(&fakeRuntime{err: invokeErr}, "anthropic.claude-v2")
	_, err := client.Complete(context.Background(), &core.CompletionRequest{Prompt: "hello"})
	assert.ErrorIs(t, err, invokeErr)
}
