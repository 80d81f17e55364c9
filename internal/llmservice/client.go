// Package llmservice adapts langchaingo chat models to answer generation.
package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

// Client sends single prompts to a language model
type Client struct {
	llm         llms.Model
	model       string
	maxTokens   int
	temperature float64
}

// NewClient builds a client for the configured provider.
// A nil client with no error means generation is disabled.
func NewClient(llmConfig *config.LLMConfig, gen *config.GenerationConfig) (*Client, error) {
	var llm llms.Model
	var err error
	switch llmConfig.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderOpenAI:
		llm, err = openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		)
	case config.ProviderOllama:
		llm, err = ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
	default:
		return nil, fmt.Errorf("%w: unsupported inference provider %q", models.ErrInvalidConfig, llmConfig.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %v", llmConfig.Provider, err)
	}
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Msg("Created inference client")
	return NewWithModel(llm, llmConfig.Model, gen), nil
}

// NewWithModel wraps an existing langchaingo model
func NewWithModel(llm llms.Model, model string, gen *config.GenerationConfig) *Client {
	return &Client{
		llm:         llm,
		model:       model,
		maxTokens:   gen.MaxTokens,
		temperature: gen.Temperature,
	}
}

// Complete returns the model output for the prompt
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	log.Debug().Str("model", c.model).Int("prompt_chars", len(prompt)).Msg("Generating content")
	out, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt,
		llms.WithMaxTokens(c.maxTokens),
		llms.WithTemperature(c.temperature),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrGeneration, err)
	}
	return out, nil
}
