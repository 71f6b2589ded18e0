package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bestseller/tracker/internal/domain/market"
	"github.com/bestseller/tracker/internal/infrastructure/persistence/models"
)

// GormRunRepository implements market.RunRepository using GORM
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

var _ market.RunRepository = (*GormRunRepository)(nil)

// Save inserts the run or replaces a stored run with the same id
func (r *GormRunRepository) Save(ctx context.Context, run *market.CollectionRun) error {
	model := models.CollectionRunFromDomain(run)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "finished_at", "persisted", "platforms", "error_summary", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("save collection run %s: %w", run.ID, err)
	}
	return nil
}

// FindByID returns the run or market.ErrRunNotFound
func (r *GormRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*market.CollectionRun, error) {
	var model models.CollectionRunModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", market.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("find collection run %s: %w", id, err)
	}
	return model.ToDomain(), nil
}

// FindRecent returns up to limit runs, newest first
func (r *GormRunRepository) FindRecent(ctx context.Context, limit int) ([]market.CollectionRun, error) {
	var rows []models.CollectionRunModel
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list collection runs: %w", err)
	}
	runs := make([]market.CollectionRun, len(rows))
	for i := range rows {
		runs[i] = *rows[i].ToDomain()
	}
	return runs, nil
}
