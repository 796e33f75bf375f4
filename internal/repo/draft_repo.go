// Package repo implements the data persistence layer for domain entities.
// This file provides repository functions for the Draft model.
//
// Drafts are only ever mutated through UpdateDraftCAS, a compare-and-swap
// on the version column. Callers that lose the race receive ErrStaleVersion
// and are expected to re-read and retry.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

// GetDraftByCustomer returns the customer's live draft or ErrNotFound.
func GetDraftByCustomer(ctx context.Context, db *gorm.DB, customerID string) (*domain.Draft, error) {
	var d domain.Draft
	if err := db.WithContext(ctx).Where("customer_id = ?", customerID).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDraft returns a draft by id or ErrNotFound.
func GetDraft(ctx context.Context, db *gorm.DB, id string) (*domain.Draft, error) {
	var d domain.Draft
	if err := db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// GetOrCreateDraft returns the customer's draft, inserting an empty one at
// version 1 when none exists. Concurrent callers converge on the same row
// through the unique customer index. created reports whether this call
// inserted the row.
func GetOrCreateDraft(ctx context.Context, db *gorm.DB, customerID string, now time.Time) (d *domain.Draft, created bool, err error) {
	fresh := domain.Draft{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Step:       domain.StepCollectService,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "customer_id"}}, DoNothing: true}).
		Create(&fresh)
	if res.Error != nil {
		return nil, false, res.Error
	}
	d, err = GetDraftByCustomer(ctx, db, customerID)
	if err != nil {
		return nil, false, err
	}
	return d, res.RowsAffected == 1 && d.ID == fresh.ID, nil
}

// RestoreDraft re-inserts a draft that was deleted while one of its payments
// still needed it. It keeps d.ID so earlier payments stay linked. An existing
// draft for the customer wins and is returned instead.
func RestoreDraft(ctx context.Context, db *gorm.DB, d *domain.Draft, now time.Time) (*domain.Draft, error) {
	d.Version = 1
	d.CreatedAt, d.UpdatedAt = now, now
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(d).Error
	if err != nil {
		return nil, err
	}
	return GetDraftByCustomer(ctx, db, d.CustomerID)
}

// UpdateDraftCAS writes every mutable field of d provided the stored row is
// still at d.Version. On success d.Version is incremented and UpdatedAt set.
func UpdateDraftCAS(ctx context.Context, db *gorm.DB, d *domain.Draft, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Draft{}).
		Where("id = ? AND version = ?", d.ID, d.Version).
		Updates(map[string]any{
			"service":          d.Service,
			"date":             d.Date,
			"time":             d.Time,
			"starts_at":        d.StartsAt,
			"customer_name":    d.CustomerName,
			"recipient_name":   d.RecipientName,
			"recipient_phone":  d.RecipientPhone,
			"for_someone_else": d.ForSomeoneElse,
			"payer_phone":      d.PayerPhone,
			"step":             d.Step,
			"version":          d.Version + 1,
			"updated_at":       now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	d.Version++
	d.UpdatedAt = now
	return nil
}

// DeleteDraftByCustomer removes the customer's draft. It reports whether a
// row was deleted.
func DeleteDraftByCustomer(ctx context.Context, db *gorm.DB, customerID string) (bool, error) {
	res := db.WithContext(ctx).Where("customer_id = ?", customerID).Delete(&domain.Draft{})
	return res.RowsAffected > 0, res.Error
}

// DeleteDraftByID removes a draft by id, reporting whether a row was deleted.
func DeleteDraftByID(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Draft{})
	return res.RowsAffected > 0, res.Error
}

// DeleteDraftIfIdle deletes a draft only if it is still at version and has
// no pending payment. Both guards are evaluated in the DELETE itself, so a
// merge or deposit push that lands between the staleness check and the
// delete keeps the draft alive.
func DeleteDraftIfIdle(ctx context.Context, db *gorm.DB, id string, version int64) (bool, error) {
	res := db.WithContext(ctx).
		Where("id = ? AND version = ?", id, version).
		Where("NOT EXISTS (SELECT 1 FROM payments WHERE payments.draft_id = drafts.id AND payments.status = ?)", domain.PaymentPending).
		Delete(&domain.Draft{})
	return res.RowsAffected > 0, res.Error
}

// ListSweepCandidates returns up to limit drafts untouched since idleBefore
// or created before ceilingBefore, in id order after afterID. Drafts with a
// pending payment are left out. The caller applies the full staleness rules
// per draft and pages by passing the last id it saw.
func ListSweepCandidates(ctx context.Context, db *gorm.DB, idleBefore, ceilingBefore time.Time, afterID string, limit int) ([]domain.Draft, error) {
	var out []domain.Draft
	q := db.WithContext(ctx).
		Where("updated_at < ? OR created_at < ?", idleBefore, ceilingBefore).
		Where("NOT EXISTS (SELECT 1 FROM payments WHERE payments.draft_id = drafts.id AND payments.status = ?)", domain.PaymentPending)
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	err := q.Order("id ASC").Limit(limit).Find(&out).Error
	return out, err
}
