// Package openai generates answers with OpenAI compatible chat models through
// langchaingo.
package openai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"pdfrag/src/core/rag"
)

const (
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = 0.5

	stopReasonLength = "length"
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

type Generator struct {
	llm  llms.Model
	opts []llms.CallOption
}

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	options := []lcopenai.Option{
		lcopenai.WithToken(cfg.APIKey),
		lcopenai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		options = append(options, lcopenai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := lcopenai.New(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return newGenerator(llm, cfg), nil
}

// NewGeneratorWithModel wraps any langchaingo model, e.g. a fake in tests.
func NewGeneratorWithModel(llm llms.Model, cfg Config) *Generator {
	return newGenerator(llm, cfg)
}

func newGenerator(llm llms.Model, cfg Config) *Generator {
	opts := []llms.CallOption{llms.WithTemperature(cfg.Temperature)}
	if cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	return &Generator{llm: llm, opts: opts}
}

func (g *Generator) GenerateStream(ctx context.Context, system, prompt string) (rag.Stream, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	return rag.NewPipeStream(ctx, func(ctx context.Context, emit func(string) error) error {
		opts := append([]llms.CallOption{
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				return emit(string(chunk))
			}),
		}, g.opts...)

		resp, err := g.llm.GenerateContent(ctx, messages, opts...)
		if err != nil {
			return fmt.Errorf("openai stream failed: %w", err)
		}
		_, err = firstChoice(resp)
		return err
	}), nil
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
	resp, err := g.llm.GenerateContent(ctx, messages, g.opts...)
	if err != nil {
		return "", fmt.Errorf("openai generation failed: %w", err)
	}
	choice, err := firstChoice(resp)
	if err != nil {
		return "", err
	}
	return choice.Content, nil
}

func firstChoice(resp *llms.ContentResponse) (*llms.ContentChoice, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty response")
	}
	choice := resp.Choices[0]
	if choice.StopReason == stopReasonLength {
		return nil, fmt.Errorf("openai: %w", rag.ErrTruncated)
	}
	return choice, nil
}
