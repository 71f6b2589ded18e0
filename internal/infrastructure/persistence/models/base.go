package models

import "time"

// Timestamps holds the bookkeeping columns of mutable rows
type Timestamps struct {
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// All returns every model managed by AutoMigrate
func All() []any {
	return []any{
		&ProductModel{},
		&SnapshotModel{},
		&CollectionRunModel{},
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
