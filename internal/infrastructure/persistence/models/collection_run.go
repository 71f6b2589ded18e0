package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bestseller/tracker/internal/domain/market"
)

// CollectionRunModel stores a finalized collection run
type CollectionRunModel struct {
	ID           uuid.UUID `gorm:"type:varchar(36);primaryKey"`
	Status       string    `gorm:"type:varchar(16);not null;index"`
	StartedAt    time.Time `gorm:"not null;index"`
	FinishedAt   *time.Time
	Persisted    int                                        `gorm:"not null;default:0"`
	Platforms    map[market.Platform]*market.PlatformResult `gorm:"type:text;serializer:json"`
	ErrorSummary []market.ErrorEntry                        `gorm:"type:text;serializer:json"`
	Timestamps
}

// TableName returns the table name for GORM
func (CollectionRunModel) TableName() string {
	return "collection_runs"
}

// CollectionRunFromDomain builds a row from a run
func CollectionRunFromDomain(r *market.CollectionRun) *CollectionRunModel {
	return &CollectionRunModel{
		ID:           r.ID,
		Status:       string(r.Status),
		StartedAt:    r.StartedAt.UTC(),
		FinishedAt:   utcPtr(r.FinishedAt),
		Persisted:    r.PersistedCount(),
		Platforms:    r.Platforms,
		ErrorSummary: r.ErrorSummary,
	}
}

// ToDomain converts the row to a run
func (m *CollectionRunModel) ToDomain() *market.CollectionRun {
	run := &market.CollectionRun{
		ID:           m.ID,
		StartedAt:    m.StartedAt.UTC(),
		FinishedAt:   utcPtr(m.FinishedAt),
		Status:       market.RunStatus(m.Status),
		Platforms:    m.Platforms,
		ErrorSummary: m.ErrorSummary,
	}
	if run.Platforms == nil {
		run.Platforms = make(map[market.Platform]*market.PlatformResult)
	}
	if run.ErrorSummary == nil {
		run.ErrorSummary = []market.ErrorEntry{}
	}
	return run
}
