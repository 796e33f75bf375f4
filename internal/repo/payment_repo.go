// Package repo implements the data persistence layer for domain entities.
// This file provides repository functions for the Payment model.
//
// Every status transition is a conditional UPDATE guarded on the current
// status, so a redelivered callback or a racing verification affects zero
// rows instead of overwriting a terminal state. Functions that perform a
// transition report whether they won it.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

// pendingFirst orders the draft's single pending row ahead of history rows
// created in the same instant.
const pendingFirst = "CASE WHEN status = 'pending' THEN 0 ELSE 1 END"

// LatestPaymentForDraft returns the most recent payment for a draft. A
// pending row is always the latest.
func LatestPaymentForDraft(ctx context.Context, db *gorm.DB, draftID string) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).
		Where("draft_id = ?", draftID).
		Order(pendingFirst).Order("created_at DESC").Order("id DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LatestPaymentForCustomer returns the customer's most recent payment across
// all drafts, including drafts that no longer exist.
func LatestPaymentForCustomer(ctx context.Context, db *gorm.DB, customerID string) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order(pendingFirst).Order("created_at DESC").Order("id DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PendingPaymentForCustomer returns the customer's newest pending payment.
func PendingPaymentForCustomer(ctx context.Context, db *gorm.DB, customerID string) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).
		Where("customer_id = ? AND status = ?", customerID, domain.PaymentPending).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPayment returns a payment by id.
func GetPayment(ctx context.Context, db *gorm.DB, id string) (*domain.Payment, error) {
	var p domain.Payment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPaymentByCorrelation looks a payment up by the gateway's correlation id.
func GetPaymentByCorrelation(ctx context.Context, db *gorm.DB, correlationID string) (*domain.Payment, error) {
	var p domain.Payment
	if err := db.WithContext(ctx).Where("correlation_id = ?", correlationID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPaymentByReceipt returns the payment holding receipt, if any.
func FindPaymentByReceipt(ctx context.Context, db *gorm.DB, receipt string) (*domain.Payment, error) {
	var p domain.Payment
	if err := db.WithContext(ctx).Where("receipt_code = ?", receipt).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePendingPayment inserts a new pending row. ErrDuplicate means another
// pending row for the same draft already exists.
func CreatePendingPayment(ctx context.Context, db *gorm.DB, draftID, customerID, phone string, amount int64, snap domain.DraftSnapshot, now time.Time) (*domain.Payment, error) {
	key := draftID
	p := &domain.Payment{
		ID:         uuid.NewString(),
		DraftID:    draftID,
		CustomerID: customerID,
		Amount:     amount,
		Phone:      phone,
		Status:     domain.PaymentPending,
		PendingKey: &key,
		Snapshot:   snap,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return p, nil
}

// ResetPaymentToPending reuses a failed row, or a pending row that never got
// a correlation id and has no push in flight since staleBefore, for a fresh
// push attempt. The previous correlation id is dropped, so a late callback
// for the earlier push is treated as unknown. It reports whether the row was
// reset; ErrDuplicate means a different pending row already holds the draft.
func ResetPaymentToPending(ctx context.Context, db *gorm.DB, p *domain.Payment, phone string, amount int64, snap domain.DraftSnapshot, now, staleBefore time.Time) (bool, error) {
	key := p.DraftID
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ?", p.ID).
		Where("status = ? OR (status = ? AND correlation_id IS NULL AND (push_started_at IS NULL OR push_started_at < ?))",
			domain.PaymentFailed, domain.PaymentPending, staleBefore).
		Updates(map[string]any{
			"status":          domain.PaymentPending,
			"pending_key":     key,
			"correlation_id":  nil,
			"phone":           phone,
			"amount":          amount,
			"snapshot":        snap,
			"failure_reason":  "",
			"push_started_at": nil,
			"updated_at":      now,
		})
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return false, ErrDuplicate
		}
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	p.Status = domain.PaymentPending
	p.PendingKey = &key
	p.CorrelationID = nil
	p.Phone = phone
	p.Amount = amount
	p.Snapshot = snap
	p.FailureReason = ""
	p.PushStartedAt = nil
	p.UpdatedAt = now
	return true, nil
}

// ClaimPush marks a pending, uncorrelated row as having a push in flight.
// Only one caller can hold the claim until it expires at staleBefore, which
// keeps concurrent initiations from sending two pushes.
func ClaimPush(ctx context.Context, db *gorm.DB, paymentID string, now, staleBefore time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status = ? AND correlation_id IS NULL", paymentID, domain.PaymentPending).
		Where("push_started_at IS NULL OR push_started_at < ?", staleBefore).
		Updates(map[string]any{"push_started_at": now, "updated_at": now})
	return res.RowsAffected == 1, res.Error
}

// SetCorrelation stores the gateway correlation id on a pending row.
func SetCorrelation(ctx context.Context, db *gorm.DB, paymentID, correlationID string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status = ? AND correlation_id IS NULL", paymentID, domain.PaymentPending).
		Updates(map[string]any{"correlation_id": correlationID, "updated_at": now})
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	return nil
}

// RefreshPendingSnapshot replaces the booking details of a pending row. The
// push already sent is kept. It reports whether the row was still pending.
func RefreshPendingSnapshot(ctx context.Context, db *gorm.DB, paymentID string, snap domain.DraftSnapshot, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status = ?", paymentID, domain.PaymentPending).
		Updates(map[string]any{"snapshot": snap, "updated_at": now})
	return res.RowsAffected == 1, res.Error
}

// MarkPaymentFailed moves a pending row to failed. It reports whether the
// transition happened.
func MarkPaymentFailed(ctx context.Context, db *gorm.DB, paymentID, reason string, now time.Time) (bool, error) {
	if len(reason) > 255 {
		reason = reason[:255]
	}
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status = ?", paymentID, domain.PaymentPending).
		Updates(map[string]any{
			"status":         domain.PaymentFailed,
			"pending_key":    nil,
			"failure_reason": reason,
			"updated_at":     now,
		})
	return res.RowsAffected == 1, res.Error
}

// MarkPaymentSuccess moves a pending row to success and attaches receipt.
// ErrDuplicate means the receipt is already attached elsewhere or the draft
// already has a successful payment.
func MarkPaymentSuccess(ctx context.Context, db *gorm.DB, p *domain.Payment, receipt string, now time.Time) (bool, error) {
	key := p.DraftID
	updates := map[string]any{
		"status":      domain.PaymentSuccess,
		"pending_key": nil,
		"success_key": key,
		"updated_at":  now,
	}
	if receipt != "" {
		updates["receipt_code"] = receipt
	}
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status = ?", p.ID, domain.PaymentPending).
		Updates(updates)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return false, ErrDuplicate
		}
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	p.Status = domain.PaymentSuccess
	p.PendingKey = nil
	p.SuccessKey = &key
	if receipt != "" {
		p.ReceiptCode = &receipt
	}
	p.UpdatedAt = now
	return true, nil
}

// AttachReceipt records receipt on a successful row that settled without
// one, as happens when status polling wins the race against the callback.
func AttachReceipt(ctx context.Context, db *gorm.DB, paymentID, receipt string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status = ? AND receipt_code IS NULL", paymentID, domain.PaymentSuccess).
		Updates(map[string]any{"receipt_code": receipt, "updated_at": now})
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return false, ErrDuplicate
		}
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeletePendingForDraft removes pending rows for a draft other than keepID.
func DeletePendingForDraft(ctx context.Context, db *gorm.DB, draftID, keepID string) (int64, error) {
	q := db.WithContext(ctx).Where("draft_id = ? AND status = ?", draftID, domain.PaymentPending)
	if keepID != "" {
		q = q.Where("id <> ?", keepID)
	}
	res := q.Delete(&domain.Payment{})
	return res.RowsAffected, res.Error
}

// PaymentSummary describes the payment history of one draft.
type PaymentSummary struct {
	Total   int64
	Pending int64
	Success int64
	Failed  int64
}

// SummarizePayments counts payments per status for a draft.
func SummarizePayments(ctx context.Context, db *gorm.DB, draftID string) (PaymentSummary, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Select("status, COUNT(*) AS n").
		Where("draft_id = ?", draftID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return PaymentSummary{}, err
	}
	var s PaymentSummary
	for _, r := range rows {
		s.Total += r.N
		switch r.Status {
		case domain.PaymentPending:
			s.Pending = r.N
		case domain.PaymentSuccess:
			s.Success = r.N
		case domain.PaymentFailed:
			s.Failed = r.N
		}
	}
	return s, nil
}

// ListPendingPayments returns pending rows with a correlation id created
// after since, oldest first. Used to resume status polling after restart.
func ListPendingPayments(ctx context.Context, db *gorm.DB, since time.Time, limit int) ([]domain.Payment, error) {
	var out []domain.Payment
	err := db.WithContext(ctx).
		Where("status = ? AND correlation_id IS NOT NULL AND created_at > ?", domain.PaymentPending, since).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
