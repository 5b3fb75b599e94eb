package documentctrl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	kb "pdfrag/src/core/knowledgebase"
)

type Document struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false"`
	Tenant    string `gorm:"not null;uniqueIndex:idx_documents_tenant_namespace"`
	Namespace string `gorm:"not null;uniqueIndex:idx_documents_tenant_namespace"`
	Filename  string `gorm:"not null"`
	ObjectKey string
	Chunks    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the documents table.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&Document{}); err != nil {
		return fmt.Errorf("failed to migrate documents: %w", err)
	}
	return nil
}

// Save inserts the document or updates the row with the same tenant and
// namespace.
func (r *Repository) Save(ctx context.Context, doc *kb.Document) error {
	row := fromDomain(doc)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant"}, {Name: "namespace"}},
			DoUpdates: clause.AssignmentColumns([]string{"filename", "object_key", "chunks", "updated_at"}),
		}).
		Create(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to save document: %w", result.Error)
	}
	doc.CreatedAt = row.CreatedAt
	doc.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *Repository) Get(ctx context.Context, tenant, namespace string) (*kb.Document, error) {
	var row Document
	result := r.db.WithContext(ctx).
		Where("tenant = ? AND namespace = ?", tenant, namespace).
		First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", result.Error)
	}
	doc := toDomain(row)
	return &doc, nil
}

func (r *Repository) List(ctx context.Context, tenant string, offset, limit int) ([]kb.Document, error) {
	var rows []Document
	result := r.db.WithContext(ctx).
		Where("tenant = ?", tenant).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list documents: %w", result.Error)
	}

	docs := make([]kb.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, toDomain(row))
	}
	return docs, nil
}

func (r *Repository) Delete(ctx context.Context, tenant, namespace string) error {
	result := r.db.WithContext(ctx).
		Where("tenant = ? AND namespace = ?", tenant, namespace).
		Delete(&Document{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete document: %w", result.Error)
	}
	return nil
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func fromDomain(doc *kb.Document) Document {
	return Document{
		ID:        doc.ID,
		Tenant:    doc.Tenant,
		Namespace: doc.Namespace,
		Filename:  doc.Filename,
		ObjectKey: doc.ObjectKey,
		Chunks:    doc.Chunks,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func toDomain(row Document) kb.Document {
	return kb.Document{
		ID:        row.ID,
		Tenant:    row.Tenant,
		Namespace: row.Namespace,
		Filename:  row.Filename,
		ObjectKey: row.ObjectKey,
		Chunks:    row.Chunks,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
