package openai_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"pdfrag/src/core/rag"
	"pdfrag/src/infrastructure/integrations/openai"
)

// fakeModel replays chunks through the streaming callback.
type fakeModel struct {
	chunks     []string
	stopReason string
	err        error
	messages []llms.MessageContent
	options  llms.CallOptions
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	m.options = llms.CallOptions{}
	for _, opt := range options {
		opt(&m.options)
	}

	for _, chunk := range m.chunks {
		if m.options.StreamingFunc != nil {
			if err := m.options.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: strings.Join(m.chunks, ""), StopReason: m.stopReason}},
	}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func textOf(msg llms.MessageContent) string {
	if len(msg.Parts) == 0 {
		return ""
	}
	if part, ok := msg.Parts[0].(llms.TextContent); ok {
		return part.Text
	}
	return ""
}

func TestNewGeneratorRequiresKey(t *testing.T) {
	_, err := openai.NewGenerator(openai.Config{})
	assert.Error(t, err)
}

func TestGenerateStream(t *testing.T) {
	model := &fakeModel{chunks: []string{"Hel", "", "lo"}}
	gen := openai.NewGeneratorWithModel(model, openai.Config{Temperature: 0.2, MaxTokens: 100})

	stream, err := gen.GenerateStream(context.Background(), "be brief", "hi")
	require.NoError(t, err)
	defer stream.Close()

	var got []string
	for stream.Next() {
		got = append(got, stream.Fragment())
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []string{"Hel", "lo"}, got)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, "be brief", textOf(model.messages[0]))
	assert.Equal(t, "hi", textOf(model.messages[1]))
	assert.Equal(t, 100, model.options.MaxTokens)
	assert.InDelta(t, 0.2, model.options.Temperature, 1e-9)
}

func TestGenerateStreamFailure(t *testing.T) {
	boom := errors.New("rate limited")
	gen := openai.NewGeneratorWithModel(&fakeModel{chunks: []string{"partial"}, err: boom}, openai.Config{})

	stream, err := gen.GenerateStream(context.Background(), "", "hi")
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Next())
	assert.False(t, stream.Next())
	assert.ErrorIs(t, stream.Err(), boom)
}

func TestGenerate(t *testing.T) {
	model := &fakeModel{chunks: []string{"Hello", " world"}}
	gen := openai.NewGeneratorWithModel(model, openai.Config{})

	out, err := gen.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", out)
	assert.Nil(t, model.options.StreamingFunc)
	require.Len(t, model.messages, 1)
	assert.Equal(t, "hi", textOf(model.messages[0]))
}

func TestTruncatedResponseFails(t *testing.T) {
	model := &fakeModel{chunks: []string{"cut"}, stopReason: "length"}
	gen := openai.NewGeneratorWithModel(model, openai.Config{MaxTokens: 1})

	stream, err := gen.GenerateStream(context.Background(), "", "hi")
	require.NoError(t, err)
	defer stream.Close()
	for stream.Next() {
	}
	assert.ErrorIs(t, stream.Err(), rag.ErrTruncated)

	_, err = gen.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, rag.ErrTruncated)
}
