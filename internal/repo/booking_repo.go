// Package repo implements the data persistence layer for domain entities.
// This file provides repository functions for the Booking model, including
// the serialized confirm path that guarantees confirmed bookings never
// overlap.
//
// Confirmation protocol (inside one transaction):
//
//  1. LockDays upserts the lock row of every local day the interval
//     touches, in ascending order. On SQLite the first write takes the
//     database write lock; on Postgres each takes a row lock. Overlapping
//     intervals share at least one day, so a second confirmer waits here.
//  2. OverlappingConfirmed re-reads confirmed bookings for the interval.
//  3. The insert or status update runs only when step 2 found nothing.
package repo

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

// ConfirmedInWindow returns confirmed bookings intersecting [from, to),
// ordered by start.
func ConfirmedInWindow(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.Booking, error) {
	var out []domain.Booking
	err := db.WithContext(ctx).
		Where("status = ? AND starts_at < ? AND ends_at > ?", domain.BookingConfirmed, to, from).
		Order("starts_at ASC").
		Find(&out).Error
	return out, err
}

// LockDay serializes confirmations for a calendar day. It must run inside
// the confirming transaction.
func LockDay(tx *gorm.DB, day string, now time.Time) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "day"}},
		DoUpdates: clause.Assignments(map[string]any{
			"seq":        gorm.Expr("booking_day_locks.seq + 1"),
			"updated_at": now,
		}),
	}).Create(&domain.DayLock{Day: day, Seq: 1, UpdatedAt: now}).Error
}

// LockDays runs LockDay for each distinct day in ascending order, so two
// transactions locking overlapping day sets cannot deadlock.
func LockDays(tx *gorm.DB, days []string, now time.Time) error {
	sorted := append([]string(nil), days...)
	sort.Strings(sorted)
	for i, d := range sorted {
		if i > 0 && d == sorted[i-1] {
			continue
		}
		if err := LockDay(tx, d, now); err != nil {
			return err
		}
	}
	return nil
}

// OverlappingConfirmed returns the first confirmed booking intersecting
// [start, end) other than excludeID, or ErrNotFound.
func OverlappingConfirmed(tx *gorm.DB, start, end time.Time, excludeID string) (*domain.Booking, error) {
	q := tx.Model(&domain.Booking{}).
		Where("status = ? AND starts_at < ? AND ends_at > ?", domain.BookingConfirmed, end, start)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var b domain.Booking
	if err := q.Order("starts_at ASC").Take(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// InsertConfirmed creates b as confirmed after the overlap re-check. It must
// run inside the confirming transaction, after LockDays.
func InsertConfirmed(tx *gorm.DB, b *domain.Booking) error {
	if _, err := OverlappingConfirmed(tx, b.StartsAt, b.EndsAt, ""); err == nil {
		return ErrOverlap
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Status = domain.BookingConfirmed
	if err := tx.Create(b).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// PromoteConfirmed moves a provisional booking to confirmed after the
// overlap re-check. It must run inside the confirming transaction, after
// LockDays. It returns ErrStaleVersion when the row is no longer provisional.
func PromoteConfirmed(tx *gorm.DB, b *domain.Booking, now time.Time) error {
	if _, err := OverlappingConfirmed(tx, b.StartsAt, b.EndsAt, b.ID); err == nil {
		return ErrOverlap
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	res := tx.Model(&domain.Booking{}).
		Where("id = ? AND status = ?", b.ID, domain.BookingProvisional).
		Updates(map[string]any{"status": domain.BookingConfirmed, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	b.Status = domain.BookingConfirmed
	b.UpdatedAt = now
	return nil
}

// MoveConfirmed changes the interval of a confirmed booking after the
// overlap re-check, excluding the booking itself.
func MoveConfirmed(tx *gorm.DB, b *domain.Booking, start, end time.Time, now time.Time) error {
	if _, err := OverlappingConfirmed(tx, start, end, b.ID); err == nil {
		return ErrOverlap
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	res := tx.Model(&domain.Booking{}).
		Where("id = ? AND status = ? AND starts_at = ?", b.ID, b.Status, b.StartsAt).
		Updates(map[string]any{"starts_at": start, "ends_at": end, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	b.StartsAt, b.EndsAt, b.UpdatedAt = start, end, now
	return nil
}

// CreateProvisional inserts a provisional booking. Provisional rows never
// block availability.
func CreateProvisional(ctx context.Context, db *gorm.DB, b *domain.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Status = domain.BookingProvisional
	return db.WithContext(ctx).Create(b).Error
}

// GetBooking returns a booking by id.
func GetBooking(ctx context.Context, db *gorm.DB, id string) (*domain.Booking, error) {
	var b domain.Booking
	if err := db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBookingForCustomer returns a booking by id, scoped to its owner.
func GetBookingForCustomer(ctx context.Context, db *gorm.DB, id, customerID string) (*domain.Booking, error) {
	var b domain.Booking
	if err := db.WithContext(ctx).Where("id = ? AND customer_id = ?", id, customerID).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBookingByPayment returns the booking created from a payment.
func GetBookingByPayment(ctx context.Context, db *gorm.DB, paymentID string) (*domain.Booking, error) {
	var b domain.Booking
	if err := db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// TransitionBooking changes status from one value to another. It reports
// whether a row changed.
func TransitionBooking(ctx context.Context, db *gorm.DB, id, from, to string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": now})
	return res.RowsAffected == 1, res.Error
}

// CountBookings returns the number of bookings owned by customerID.
func CountBookings(ctx context.Context, db *gorm.DB, customerID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Booking{}).Where("customer_id = ?", customerID).Count(&total).Error
	return total, err
}

// ListBookingsPage returns a page of the customer's bookings, soonest first.
func ListBookingsPage(ctx context.Context, db *gorm.DB, customerID string, offset, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("starts_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
