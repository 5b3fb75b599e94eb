// Package anthropic generates answers with Claude models.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"pdfrag/src/core/rag"
)

const (
	DefaultModel     = "claude-3-5-haiku-latest"
	DefaultMaxTokens = 1024
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

type Generator struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Generator{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}, nil
}

func (g *Generator) params(system, prompt string) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   g.maxTokens,
		Temperature: anthropic.Float(g.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

func (g *Generator) GenerateStream(ctx context.Context, system, prompt string) (rag.Stream, error) {
	stream := g.client.Messages.NewStreaming(ctx, g.params(system, prompt))
	return &messageStream{stream: stream}, nil
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.client.Messages.New(ctx, g.params("", prompt))
	if err != nil {
		return "", fmt.Errorf("anthropic generation failed: %w", err)
	}
	if msg.StopReason == anthropic.StopReasonMaxTokens {
		return "", fmt.Errorf("anthropic: %w", rag.ErrTruncated)
	}

	var result strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			result.WriteString(block.Text)
		}
	}
	if result.Len() == 0 {
		return "", fmt.Errorf("anthropic: no response content returned")
	}
	return result.String(), nil
}

// Ping validates the API key by listing models.
func (g *Generator) Ping(ctx context.Context) error {
	if _, err := g.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return fmt.Errorf("anthropic: ping failed: %w", err)
	}
	return nil
}

// messageStream exposes the text deltas of a message stream. A message that
// stops at max_tokens ends the stream with rag.ErrTruncated.
type messageStream struct {
	stream  *ssestream.Stream[anthropic.MessageStreamEventUnion]
	current string
	err     error
}

func (s *messageStream) Next() bool {
	if s.err != nil {
		return false
	}
	for s.stream.Next() {
		switch ev := s.stream.Current().AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			s.current = delta.Text
			return true
		case anthropic.MessageDeltaEvent:
			if ev.Delta.StopReason == anthropic.StopReasonMaxTokens {
				s.err = fmt.Errorf("anthropic: %w", rag.ErrTruncated)
				return false
			}
		}
	}
	return false
}

func (s *messageStream) Fragment() string {
	return s.current
}

func (s *messageStream) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.stream.Err()
}

func (s *messageStream) Close() error {
	return s.stream.Close()
}
