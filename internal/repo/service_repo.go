package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

// ListServices returns the catalog ordered by name.
func ListServices(ctx context.Context, db *gorm.DB) ([]domain.Service, error) {
	var out []domain.Service
	err := db.WithContext(ctx).Order("name ASC").Find(&out).Error
	return out, err
}

// UpsertServices inserts or refreshes catalog entries keyed by name.
func UpsertServices(ctx context.Context, db *gorm.DB, items []domain.Service) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"duration_text", "duration_min", "price", "deposit"}),
		}).
		Create(&items).Error
}
