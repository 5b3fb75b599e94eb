package rag

import (
	"context"
)

// ProduceFunc generates fragments by calling emit for each one. emit fails
// once the consumer has closed the stream; the producer must then return.
type ProduceFunc func(ctx context.Context, emit func(fragment string) error) error

type pipeStream struct {
	cancel   context.CancelFunc
	frags    chan string
	current  string
	err      error
	finished bool
	closed   bool
}

// NewPipeStream adapts a callback-style producer to a pull Stream. The
// producer runs in its own goroutine and hands over one fragment per Next
// call. Closing the stream cancels the producer's context and waits for it
// to return.
func NewPipeStream(ctx context.Context, produce ProduceFunc) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &pipeStream{
		cancel: cancel,
		frags:  make(chan string),
	}

	go func() {
		err := produce(ctx, func(fragment string) error {
			if fragment == "" {
				return nil
			}
			select {
			case s.frags <- fragment:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		s.err = err
		close(s.frags)
	}()

	return s
}

func (s *pipeStream) Next() bool {
	if s.closed || s.finished {
		return false
	}
	fragment, ok := <-s.frags
	if !ok {
		s.finished = true
		s.cancel()
		return false
	}
	s.current = fragment
	return true
}

func (s *pipeStream) Fragment() string {
	return s.current
}

func (s *pipeStream) Err() error {
	if !s.finished {
		return nil
	}
	return s.err
}

func (s *pipeStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	if !s.finished {
		for range s.frags {
		}
	}
	return nil
}
