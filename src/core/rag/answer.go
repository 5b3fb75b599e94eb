package rag

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"
)

// CompleteFunc receives the full answer once a stream has been consumed to
// the end without error.
type CompleteFunc func(ctx context.Context, answer string) error

// AnswerStreamer submits composed prompts to the generator.
type AnswerStreamer struct {
	generator    Generator
	systemPrompt string
	timeout      time.Duration
}

// NewAnswerStreamer creates a streamer. An empty system prompt falls back to
// DefaultSystemPrompt; a positive timeout bounds each whole generation.
func NewAnswerStreamer(generator Generator, systemPrompt string, timeout time.Duration) *AnswerStreamer {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &AnswerStreamer{
		generator:    generator,
		systemPrompt: systemPrompt,
		timeout:      timeout,
	}
}

// StreamAnswer starts a new, independent generation for prompt. onComplete
// may be nil.
func (s *AnswerStreamer) StreamAnswer(ctx context.Context, prompt string, onComplete CompleteFunc) (*Answer, error) {
	var (
		genCtx context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		genCtx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		genCtx, cancel = context.WithCancel(ctx)
	}

	stream, err := s.generator.GenerateStream(genCtx, s.systemPrompt, prompt)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to start generation: %w", ErrCollaboratorUnavailable, err)
	}

	return &Answer{
		ctx:        ctx,
		cancel:     cancel,
		stream:     stream,
		onComplete: onComplete,
	}, nil
}

// Answer is a lazily generated answer consumed fragment by fragment.
//
// The completion hook runs exactly once, after Next has returned false
// because the generator finished cleanly. An answer closed before that point
// is abandoned and the hook never runs; neither does it after a failure.
type Answer struct {
	ctx        context.Context
	cancel     context.CancelFunc
	stream     Stream
	onComplete CompleteFunc

	grounded bool
	sources  []RetrievedPassage

	text      strings.Builder
	fragment  string
	err       error
	ended     bool
	completed bool
	abandoned bool
}

// Next advances to the next fragment. It may block on the generator.
func (a *Answer) Next() bool {
	if a.ended {
		return false
	}

	if a.stream.Next() {
		a.fragment = a.stream.Fragment()
		a.text.WriteString(a.fragment)
		return true
	}

	a.ended = true
	a.fragment = ""
	streamErr := a.stream.Err()
	a.release()

	switch {
	case streamErr != nil:
		a.err = fmt.Errorf("%w: generation failed: %w", ErrCollaboratorUnavailable, streamErr)
	case a.text.Len() == 0:
		a.err = fmt.Errorf("%w: no response received from generator", ErrCollaboratorUnavailable)
	default:
		a.completed = true
		if a.onComplete != nil {
			if err := a.onComplete(a.ctx, a.text.String()); err != nil {
				a.err = fmt.Errorf("failed to persist answer: %w", err)
			}
		}
	}
	return false
}

// Fragment returns the fragment produced by the last successful Next call.
func (a *Answer) Fragment() string {
	return a.fragment
}

// Err returns the error that ended the sequence, if any.
func (a *Answer) Err() error {
	return a.err
}

// Close stops generation. Closing before the sequence is exhausted abandons
// the answer.
func (a *Answer) Close() error {
	if !a.ended {
		a.ended = true
		a.abandoned = true
	}
	a.release()
	return nil
}

func (a *Answer) release() {
	if a.stream != nil {
		a.stream.Close()
	}
	if a.cancel != nil {
		a.cancel()
	}
}

// Text returns the concatenation of all fragments produced so far.
func (a *Answer) Text() string {
	return a.text.String()
}

// Completed reports whether the generator finished and the answer is final.
func (a *Answer) Completed() bool {
	return a.completed
}

// Abandoned reports whether the consumer closed the answer early.
func (a *Answer) Abandoned() bool {
	return a.abandoned
}

// Grounded reports whether the prompt carried retrieved context.
func (a *Answer) Grounded() bool {
	return a.grounded
}

// Sources returns the passages the prompt was grounded on.
func (a *Answer) Sources() []RetrievedPassage {
	return a.sources
}

// Seq exposes the answer as a range-over-func sequence. Breaking out of the
// loop abandons the answer. A failure is yielded as the final element.
func (a *Answer) Seq() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer a.Close()
		for a.Next() {
			if !yield(a.Fragment(), nil) {
				return
			}
		}
		if err := a.Err(); err != nil {
			yield("", err)
		}
	}
}
