package repository

import (
	"context"

	"reverie/internal/models"

	"gorm.io/gorm"
)

// AnalysisRepository defines the interface for dream analysis data
// operations. Analyses are append-only; there is no update path.
type AnalysisRepository interface {
	Create(ctx context.Context, analysis *models.DreamAnalysis) error
	ListByDream(ctx context.Context, ownerID, dreamID uint) ([]models.DreamAnalysis, error)
}

type analysisRepository struct {
	db *gorm.DB
}

// NewAnalysisRepository creates a new analysis repository
func NewAnalysisRepository(db *gorm.DB) AnalysisRepository {
	return &analysisRepository{db: db}
}

func (r *analysisRepository) Create(ctx context.Context, analysis *models.DreamAnalysis) error {
	if err := r.db.WithContext(ctx).Create(analysis).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *analysisRepository) ListByDream(ctx context.Context, ownerID, dreamID uint) ([]models.DreamAnalysis, error) {
	var analyses []models.DreamAnalysis
	err := r.db.WithContext(ctx).
		Where("dream_id = ? AND user_id = ?", dreamID, ownerID).
		Order("created_at ASC").
		Find(&analyses).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return analyses, nil
}
