package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"text/template"

	_ "image/jpeg"
	_ "image/png"

	"github.com/Masterminds/sprig/v3"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"pdf-rename/internal/constants"
)

const defaultOCRPrompt = `Transcribe ALL text in this scanned invoice image exactly as printed,
preserving line breaks. Pay special attention to labeled identifiers such as
"销货出库单号" / "出库单号" and the alphanumeric codes that follow them. Respond
with the transcription only. The text is likely in {{.Languages | join ", "}}.`

// Vision LLMs report no per-span confidence; a full-page transcription
// is treated as a moderately confident single span and ranked by the
// engine's priority weight.
const llmSpanConfidence = 0.85

// LLMProvider implements OCR using a vision LLM.
type LLMProvider struct {
	provider string
	model    string
	llm      llms.Model
	prompt   string
}

func newLLMProvider(config Config) (*LLMProvider, error) {
	logger := log.WithFields(logrus.Fields{
		"provider": config.VisionLLMProvider,
		"model":    config.VisionLLMModel,
	})
	logger.Info("Creating new vision LLM provider")

	var model llms.Model
	var err error

	switch strings.ToLower(config.VisionLLMProvider) {
	case "openai":
		model, err = createOpenAIClient(config)
	case "ollama":
		model, err = createOllamaClient(config)
	default:
		return nil, fmt.Errorf("unsupported vision LLM provider: %s", config.VisionLLMProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("error creating vision LLM client: %w", err)
	}

	promptText := config.VisionLLMPrompt
	if promptText == "" {
		promptText = defaultOCRPrompt
	}
	tmpl, err := template.New("ocr").Funcs(sprig.FuncMap()).Parse(promptText)
	if err != nil {
		return nil, fmt.Errorf("error parsing OCR prompt template: %w", err)
	}
	var rendered bytes.Buffer
	if err := tmpl.Execute(&rendered, map[string]interface{}{
		"Languages": config.Languages,
	}); err != nil {
		return nil, fmt.Errorf("error rendering OCR prompt template: %w", err)
	}

	return &LLMProvider{
		provider: config.VisionLLMProvider,
		model:    config.VisionLLMModel,
		llm:      model,
		prompt:   rendered.String(),
	}, nil
}

func (p *LLMProvider) Name() string { return "llm" }

func (p *LLMProvider) ProcessImage(ctx context.Context, imageContent []byte, pageNumber int) (*Result, error) {
	logger := log.WithFields(logrus.Fields{
		"engine": "llm",
		"model":  p.model,
		"page":   pageNumber,
	})
	logger.Debug("Starting vision LLM processing")

	var imagePart llms.ContentPart
	if strings.ToLower(p.provider) == "openai" {
		imagePart = llms.ImageURLPart("data:image/png;base64," + base64.StdEncoding.EncodeToString(imageContent))
	} else {
		imagePart = llms.BinaryPart("image/png", imageContent)
	}

	completion, err := p.llm.GenerateContent(ctx, []llms.MessageContent{
		{
			Parts: []llms.ContentPart{imagePart, llms.TextPart(p.prompt)},
			Role:  llms.ChatMessageTypeHuman,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error getting response from vision LLM: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("vision LLM returned no choices")
	}

	text := strings.TrimSpace(completion.Choices[0].Content)
	result := &Result{
		Engine: "llm",
		Text:   text,
		Metadata: map[string]string{
			"provider": p.provider,
			"model":    p.model,
		},
	}
	if text != "" {
		// One span per line plus the whole page, so label-anchored
		// matching works whether or not the label shares a line with
		// the number.
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			result.Candidates = append(result.Candidates, Candidate{
				Text:       line,
				Confidence: llmSpanConfidence,
				Engine:     "llm",
				Page:       pageNumber,
			})
		}
		result.Candidates = append(result.Candidates, Candidate{
			Text:       text,
			Confidence: llmSpanConfidence,
			Engine:     "llm",
			Page:       pageNumber,
		})
	}

	logger.WithField("content_length", len(text)).Info("Successfully processed image with vision LLM")
	return result, nil
}

// createOpenAIClient creates a new OpenAI-compatible vision model client.
func createOpenAIClient(config Config) (llms.Model, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("OpenAI API key is not set")
	}
	if apiKey == "" {
		// OpenAI-compatible servers usually want a token header but
		// don't validate it.
		apiKey = constants.DummyAPIKey
	}
	opts := []openai.Option{
		openai.WithModel(config.VisionLLMModel),
		openai.WithToken(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	return openai.New(opts...)
}

// createOllamaClient creates a new Ollama vision model client.
func createOllamaClient(config Config) (llms.Model, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	return ollama.New(
		ollama.WithModel(config.VisionLLMModel),
		ollama.WithServerURL(host),
	)
}
