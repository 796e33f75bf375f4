package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

// BookingsStats summarises a customer's bookings for the list ETag: how many
// there are and when the newest change happened (nil with no bookings).
// Any create, transition or reschedule moves one of the two.
func BookingsStats(ctx context.Context, db *gorm.DB, customerID string) (int64, *time.Time, error) {
	owned := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Booking{}).Where("customer_id = ?", customerID)
	}

	var n int64
	if err := owned().Count(&n).Error; err != nil {
		return 0, nil, err
	}
	if n == 0 {
		return 0, nil, nil
	}

	// Ordered read instead of MAX(updated_at): SQLite hands the aggregate
	// back as text.
	var latest struct{ UpdatedAt time.Time }
	if err := owned().Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&latest).Error; err != nil {
		return 0, nil, err
	}
	return n, &latest.UpdatedAt, nil
}
