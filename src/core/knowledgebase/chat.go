package knowledgebase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	"pdfrag/src/core/rag"
)

const DefaultHistoryLimit = 100

// AskRequest is one question from a chat session. Namespace may be empty for
// an ungrounded question.
type AskRequest struct {
	Tenant    string
	SessionID string
	Namespace string
	Query     string
}

// ChatService answers questions and keeps the chat history.
type ChatService struct {
	pipeline *rag.Pipeline
	ids      *snowflake.Node
	history  ChatRepository
	now      func() time.Time
}

type ChatOption func(*ChatService)

// WithHistory persists completed exchanges.
func WithHistory(history ChatRepository) ChatOption {
	return func(s *ChatService) {
		s.history = history
	}
}

func NewChatService(pipeline *rag.Pipeline, ids *snowflake.Node, opts ...ChatOption) *ChatService {
	s := &ChatService{
		pipeline: pipeline,
		ids:      ids,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask starts a streamed answer. The question and the answer are stored
// together once the caller has consumed the answer to the end; an abandoned
// or failed answer leaves no trace in the history.
func (s *ChatService) Ask(ctx context.Context, req AskRequest) (*rag.Answer, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", rag.ErrInvalidInput)
	}

	var (
		answer *rag.Answer
		opts   []rag.AskOption
	)
	if s.history != nil && req.SessionID != "" {
		asked := s.now()
		opts = append(opts, rag.OnComplete(func(ctx context.Context, text string) error {
			return s.history.Append(ctx,
				ChatMessage{
					ID:        s.ids.Generate().Int64(),
					Tenant:    req.Tenant,
					SessionID: req.SessionID,
					Namespace: req.Namespace,
					Role:      RoleUser,
					Content:   req.Query,
					CreatedAt: asked,
				},
				ChatMessage{
					ID:        s.ids.Generate().Int64(),
					Tenant:    req.Tenant,
					SessionID: req.SessionID,
					Namespace: req.Namespace,
					Role:      RoleAssistant,
					Content:   text,
					Grounded:  answer.Grounded(),
					CreatedAt: s.now(),
				},
			)
		}))
	}

	answer, err := s.pipeline.Ask(ctx, req.Tenant, req.Namespace, req.Query, opts...)
	if err != nil {
		return nil, err
	}
	return answer, nil
}

// History returns the messages of a session in chronological order.
func (s *ChatService) History(ctx context.Context, tenant, sessionID string, limit int) ([]ChatMessage, error) {
	if err := rag.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", rag.ErrInvalidInput)
	}
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	msgs, err := s.history.List(ctx, tenant, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat history: %w", err)
	}
	return msgs, nil
}
