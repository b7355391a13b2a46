package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// stubVisionModel is a scripted llms.Model for adapter tests.
type stubVisionModel struct {
	content   string
	err       error
	noChoices bool
	messages  []llms.MessageContent
}

func (s *stubVisionModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	s.messages = messages
	if s.err != nil {
		return nil, s.err
	}
	if s.noChoices {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s.content}}}, nil
}

func (s *stubVisionModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return s.content, s.err
}

func TestLLMProcessImageSplitsTranscriptionIntoSpans(t *testing.T) {
	stub := &stubVisionModel{content: "发货单\n销货出库单号: 1403-202402130001\n\n客户名称: 石家庄分公司\n"}
	p := &LLMProvider{provider: "ollama", model: "test-model", llm: stub, prompt: "transcribe"}

	result, err := p.ProcessImage(context.Background(), []byte("img"), 1)
	require.NoError(t, err)

	// One span per non-empty line plus the whole page.
	require.Len(t, result.Candidates, 4)
	assert.Equal(t, "发货单", result.Candidates[0].Text)
	assert.Equal(t, "销货出库单号: 1403-202402130001", result.Candidates[1].Text)
	for _, c := range result.Candidates {
		assert.Equal(t, "llm", c.Engine)
		assert.Equal(t, 1, c.Page)
		assert.InDelta(t, llmSpanConfidence, c.Confidence, 0.0001)
	}

	// The request carries exactly one message: image plus prompt.
	require.Len(t, stub.messages, 1)
	assert.Len(t, stub.messages[0].Parts, 2)
	assert.Equal(t, llms.ChatMessageTypeHuman, stub.messages[0].Role)
}

func TestLLMProcessImageEmptyTranscription(t *testing.T) {
	p := &LLMProvider{provider: "ollama", model: "test-model", llm: &stubVisionModel{content: "  \n "}, prompt: "transcribe"}

	result, err := p.ProcessImage(context.Background(), []byte("img"), 0)
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	assert.Empty(t, result.Text)
}

func TestLLMProcessImageErrors(t *testing.T) {
	p := &LLMProvider{provider: "ollama", llm: &stubVisionModel{err: errors.New("model overloaded")}}
	_, err := p.ProcessImage(context.Background(), []byte("img"), 0)
	assert.ErrorContains(t, err, "model overloaded")

	p = &LLMProvider{provider: "ollama", llm: &stubVisionModel{noChoices: true}}
	_, err = p.ProcessImage(context.Background(), []byte("img"), 0)
	assert.ErrorContains(t, err, "no choices")
}

func TestNewLLMProviderRendersDefaultPrompt(t *testing.T) {
	p, err := newLLMProvider(Config{
		VisionLLMProvider: "ollama",
		VisionLLMModel:    "test-model",
		Languages:         []string{"chi_sim", "eng"},
	})
	require.NoError(t, err)
	assert.Contains(t, p.prompt, "chi_sim, eng")
	assert.Contains(t, p.prompt, "销货出库单号")
}
