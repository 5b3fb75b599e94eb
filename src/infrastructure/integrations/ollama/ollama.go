package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"pdfrag/src/core/rag"
	"pdfrag/src/log"
)

const (
	DefaultURL            = "http://localhost:11434"
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultChatModel      = "llama3.2"
)

// ErrTruncated is returned when the model stopped because it ran out of
// context or tokens.
var ErrTruncated = rag.ErrTruncated

// Client wraps the Ollama API for embeddings and generation.
type Client struct {
	api            *api.Client
	embeddingModel string
	chatModel      string
	options        map[string]interface{}
}

type Option func(*Client)

func WithEmbeddingModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.embeddingModel = model
		}
	}
}

func WithChatModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.chatModel = model
		}
	}
}

func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.options["temperature"] = t
	}
}

func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.options["num_predict"] = n
		}
	}
}

// NewClient creates a new Ollama API client
func NewClient(baseURL string, httpClient *http.Client, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	u, err := url.Parse(strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/api"))
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		api:            api.NewClient(u, httpClient),
		embeddingModel: DefaultEmbeddingModel,
		chatModel:      DefaultChatModel,
		options:        map[string]interface{}{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Embed generates one embedding vector per text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.api.Embed(ctx, &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed with %s: %w", c.embeddingModel, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// GenerateStream streams the completion of prompt.
func (c *Client) GenerateStream(ctx context.Context, system, prompt string) (rag.Stream, error) {
	req := c.request(system, prompt, true)
	return rag.NewPipeStream(ctx, func(ctx context.Context, emit func(string) error) error {
		return c.api.Generate(ctx, req, func(resp api.GenerateResponse) error {
			if err := emit(resp.Response); err != nil {
				return err
			}
			if resp.Done && resp.DoneReason == "length" {
				log.Error(ErrTruncated, "generation stopped early", "model", c.chatModel)
				return ErrTruncated
			}
			return nil
		})
	}), nil
}

// Generate performs model generation with the given prompt
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var full strings.Builder
	err := c.api.Generate(ctx, c.request("", prompt, false), func(resp api.GenerateResponse) error {
		full.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		log.Error(err, "failed to make request to ollama", "model", c.chatModel)
		return "", fmt.Errorf("failed to generate with %s: %w", c.chatModel, err)
	}
	if full.Len() == 0 {
		return "", errors.New("no response received from Ollama")
	}
	return full.String(), nil
}

// Ping checks that the Ollama server answers.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.api.Heartbeat(ctx); err != nil {
		return fmt.Errorf("failed to reach ollama: %w", err)
	}
	return nil
}

func (c *Client) request(system, prompt string, stream bool) *api.GenerateRequest {
	return &api.GenerateRequest{
		Model:   c.chatModel,
		System:  system,
		Prompt:  prompt,
		Stream:  &stream,
		Options: c.options,
	}
}
