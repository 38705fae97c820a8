package repository

import (
	"fmt"

	"gorm.io/gorm"

	"datasethub/internal/model"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(event *model.DatasetEvent) error {
	if err := r.db.Create(event).Error; err != nil {
		return fmt.Errorf("create audit entry failed: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByDatasetID(datasetID string) ([]model.DatasetEvent, error) {
	var list []model.DatasetEvent
	if err := r.db.Where("dataset_id = ?", datasetID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list audit entries failed: %w", err)
	}
	return list, nil
}
