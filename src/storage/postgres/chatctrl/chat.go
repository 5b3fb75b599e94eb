package chatctrl

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	kb "pdfrag/src/core/knowledgebase"
)

type ChatMessage struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false"`
	Tenant    string `gorm:"not null;index:idx_chat_messages_session"`
	SessionID string `gorm:"not null;index:idx_chat_messages_session"`
	Namespace string
	Role      string `gorm:"not null"`
	Content   string `gorm:"type:text;not null"`
	Grounded  bool
	CreatedAt time.Time
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the chat_messages table.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&ChatMessage{}); err != nil {
		return fmt.Errorf("failed to migrate chat messages: %w", err)
	}
	return nil
}

func (r *Repository) Append(ctx context.Context, msgs ...kb.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]ChatMessage, len(msgs))
	for i, m := range msgs {
		rows[i] = ChatMessage{
			ID:        m.ID,
			Tenant:    m.Tenant,
			SessionID: m.SessionID,
			Namespace: m.Namespace,
			Role:      string(m.Role),
			Content:   m.Content,
			Grounded:  m.Grounded,
			CreatedAt: m.CreatedAt,
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("failed to append chat messages: %w", err)
	}
	return nil
}

// List returns the most recent messages of a session, oldest first.
func (r *Repository) List(ctx context.Context, tenant, sessionID string, limit int) ([]kb.ChatMessage, error) {
	var rows []ChatMessage
	result := r.db.WithContext(ctx).
		Where("tenant = ? AND session_id = ?", tenant, sessionID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", result.Error)
	}

	msgs := make([]kb.ChatMessage, len(rows))
	for i, row := range rows {
		msgs[len(rows)-1-i] = kb.ChatMessage{
			ID:        row.ID,
			Tenant:    row.Tenant,
			SessionID: row.SessionID,
			Namespace: row.Namespace,
			Role:      kb.Role(row.Role),
			Content:   row.Content,
			Grounded:  row.Grounded,
			CreatedAt: row.CreatedAt,
		}
	}
	return msgs, nil
}
