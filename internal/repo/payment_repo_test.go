package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

func seedDraft(t *testing.T, db *gorm.DB, customerID string, now time.Time) *domain.Draft {
	t.Helper()
	d, _, err := GetOrCreateDraft(context.Background(), db, customerID, now)
	if err != nil {
		t.Fatalf("GetOrCreateDraft: %v", err)
	}
	return d
}

func TestCreatePendingPayment_OnlyOnePendingPerDraft(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)
	d := seedDraft(t, db, "u1", now)

	p, err := CreatePendingPayment(ctx, db, d.ID, "u1", "254712345678", 500, d.Snapshot(), now)
	if err != nil {
		t.Fatalf("CreatePendingPayment: %v", err)
	}
	if p.Status != domain.PaymentPending {
		t.Fatalf("expected pending, got %s", p.Status)
	}
	if _, err := CreatePendingPayment(ctx, db, d.ID, "u1", "254712345678", 500, d.Snapshot(), now.Add(time.Second)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second pending row, got %v", err)
	}

	// Once failed, the draft may hold a new pending row.
	if ok, err := MarkPaymentFailed(ctx, db, p.ID, "cancelled by user", now.Add(time.Minute)); err != nil || !ok {
		t.Fatalf("MarkPaymentFailed: ok=%v err=%v", ok, err)
	}
	if _, err := CreatePendingPayment(ctx, db, d.ID, "u1", "254712345678", 500, d.Snapshot(), now.Add(2*time.Minute)); err != nil {
		t.Fatalf("CreatePendingPayment after failure: %v", err)
	}
}

func TestLatestPaymentForDraft_NewestWins(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)
	d := seedDraft(t, db, "u1", now)

	first, _ := CreatePendingPayment(ctx, db, d.ID, "u1", "254700000001", 500, d.Snapshot(), now)
	_, _ = MarkPaymentFailed(ctx, db, first.ID, "timeout", now.Add(time.Minute))
	second, err := CreatePendingPayment(ctx, db, d.ID, "u1", "254700000002", 500, d.Snapshot(), now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("CreatePendingPayment: %v", err)
	}

	got, err := LatestPaymentForDraft(ctx, db, d.ID)
	if err != nil {
		t.Fatalf("LatestPaymentForDraft: %v", err)
	}
	if got.ID != second.ID {
		t.Fatalf("expected newest payment %s, got %s", second.ID, got.ID)
	}

	sum, err := SummarizePayments(ctx, db, d.ID)
	if err != nil {
		t.Fatalf("SummarizePayments: %v", err)
	}
	if sum != (PaymentSummary{Total: 2, Pending: 1, Failed: 1}) {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestLatestPaymentForDraft_PendingWinsSameInstant(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)
	d := seedDraft(t, db, "u1", now)

	for i := 0; i < 5; i++ {
		p, _ := CreatePendingPayment(ctx, db, d.ID, "u1", "254700000001", 500, d.Snapshot(), now)
		_, _ = MarkPaymentFailed(ctx, db, p.ID, "superseded by resend", now)
	}
	live, err := CreatePendingPayment(ctx, db, d.ID, "u1", "254700000001", 500, d.Snapshot(), now)
	if err != nil {
		t.Fatalf("CreatePendingPayment: %v", err)
	}

	got, err := LatestPaymentForDraft(ctx, db, d.ID)
	if err != nil || got.ID != live.ID {
		t.Fatalf("LatestPaymentForDraft = %+v, %v; want pending %s", got, err, live.ID)
	}
	got, err = LatestPaymentForCustomer(ctx, db, "u1")
	if err != nil || got.ID != live.ID {
		t.Fatalf("LatestPaymentForCustomer = %+v, %v; want pending %s", got, err, live.ID)
	}
}

func TestRefreshPendingSnapshot_OnlyWhilePending(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)
	d := seedDraft(t, db, "u1", now)

	p, _ := CreatePendingPayment(ctx, db, d.ID, "u1", "254700000001", 500, d.Snapshot(), now)
	if err := SetCorrelation(ctx, db, p.ID, "ws_CO_1", now); err != nil {
		t.Fatalf("SetCorrelation: %v", err)
	}
	moved := d.Snapshot()
	moved.Time = "15:00"
	if ok, err := RefreshPendingSnapshot(ctx, db, p.ID, moved, now.Add(time.Minute)); err != nil || !ok {
		t.Fatalf("refresh pending: ok=%v err=%v", ok, err)
	}
	got, _ := GetPayment(ctx, db, p.ID)
	if got.Snapshot.Time != "15:00" || got.CorrelationID == nil || *got.CorrelationID != "ws_CO_1" {
		t.Fatalf("unexpected row after refresh: %+v", got)
	}

	_, _ = MarkPaymentFailed(ctx, db, p.ID, "timeout", now.Add(2*time.Minute))
	moved.Time = "16:00"
	if ok, err := RefreshPendingSnapshot(ctx, db, p.ID, moved, now.Add(3*time.Minute)); err != nil || ok {
		t.Fatalf("closed row must not change: ok=%v err=%v", ok, err)
	}
}

func TestResetPaymentToPending_OnlyFailedOrUncorrelated(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)
	d := seedDraft(t, db, "u1", now)

	p, _ := CreatePendingPayment(ctx, db, d.ID, "u1", "254700000001", 500, d.Snapshot(), now)
	if err := SetCorrelation(ctx, db, p.ID, "ws_CO_1", now); err != nil {
		t.Fatalf("SetCorrelation: %v", err)
	}
	if ok, err := ResetPaymentToPending(ctx, db, p, "254700000009", 500, d.Snapshot(), now, now.Add(-time.Minute)); err != nil || ok {
		t.Fatalf("correlated pending row must not reset: ok=%v err=%v", ok, err)
	}

	_, _ = MarkPaymentFailed(ctx, db, p.ID, "insufficient funds", now.Add(time.Minute))
	ok, err := ResetPaymentToPending(ctx, db, p, "254700000009", 700, d.Snapshot(), now.Add(2*time.Minute), now)
	if err != nil || !ok {
		t.Fatalf("failed row should reset: ok=%v err=%v", ok, err)
	}
	got, _ := GetPayment(ctx, db, p.ID)
	if got.Status != domain.PaymentPending || got.Phone != "254700000009" || got.Amount != 700 || got.FailureReason != "" {
		t.Fatalf("unexpected row after reset: %+v", got)
	}
	if got.CorrelationID != nil {
		t.Fatalf("expected correlation id cleared, got %v", *got.CorrelationID)
	}
	if ok, err := ClaimPush(ctx, db, p.ID, now.Add(3*time.Minute), now); err != nil || !ok {
		t.Fatalf("reset row should accept a new push claim: ok=%v err=%v", ok, err)
	}
}

func TestResetPaymentToPending_RespectsInflightPush(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)
	d := seedDraft(t, db, "u1", now)
	p, _ := CreatePendingPayment(ctx, db, d.ID, "u1", "254700000001", 500, d.Snapshot(), now)

	if ok, _ := ClaimPush(ctx, db, p.ID, now, now.Add(-time.Minute)); !ok {
		t.Fatalf("claim should succeed")
	}
	if ok, err := ResetPaymentToPending(ctx, db, p, "254700000002", 500, d.Snapshot(), now.Add(time.Second), now.Add(-time.Minute)); err != nil || ok {
		t.Fatalf("row with a push in flight must not reset: ok=%v err=%v", ok, err)
	}
	later := now.Add(2 * time.Minute)
	if ok, err := ResetPaymentToPending(ctx, db, p, "254700000002", 500, d.Snapshot(), later, later.Add(-time.Minute)); err != nil || !ok {
		t.Fatalf("abandoned claim should allow reset: ok=%v err=%v", ok, err)
	}
}

func TestAttachReceipt_OnlyFillsMissingReceipt(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)
	d := seedDraft(t, db, "u1", now)
	p, _ := CreatePendingPayment(ctx, db, d.ID, "u1", "254700000001", 500, d.Snapshot(), now)

	if ok, _ := AttachReceipt(ctx, db, p.ID, "QKX1234ABC", now); ok {
		t.Fatalf("pending row must not take a receipt")
	}
	if ok, err := MarkPaymentSuccess(ctx, db, p, "", now); err != nil || !ok {
		t.Fatalf("MarkPaymentSuccess: ok=%v err=%v", ok, err)
	}
	if ok, err := AttachReceipt(ctx, db, p.ID, "QKX1234ABC", now); err != nil || !ok {
		t.Fatalf("AttachReceipt: ok=%v err=%v", ok, err)
	}
	if ok, _ := AttachReceipt(ctx, db, p.ID, "ZZZ1234ABC", now); ok {
		t.Fatalf("receipt must not be overwritten")
	}
	got, _ := FindPaymentByReceipt(ctx, db, "QKX1234ABC")
	if got == nil || got.ID != p.ID {
		t.Fatalf("expected receipt on %s, got %+v", p.ID, got)
	}
}

func TestClaimPush_SingleWinnerUntilStale(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)
	d := seedDraft(t, db, "u1", now)
	p, _ := CreatePendingPayment(ctx, db, d.ID, "u1", "254700000001", 500, d.Snapshot(), now)

	if ok, err := ClaimPush(ctx, db, p.ID, now, now.Add(-time.Minute)); err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	if ok, err := ClaimPush(ctx, db, p.ID, now.Add(time.Second), now.Add(-time.Minute)); err != nil || ok {
		t.Fatalf("second claim should lose: ok=%v err=%v", ok, err)
	}
	// Claim expired.
	later := now.Add(2 * time.Minute)
	if ok, err := ClaimPush(ctx, db, p.ID, later, later.Add(-time.Minute)); err != nil || !ok {
		t.Fatalf("expired claim should be retaken: ok=%v err=%v", ok, err)
	}
}

func TestMarkPaymentSuccess_IdempotentAndReceiptUnique(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)

	d1 := seedDraft(t, db, "u1", now)
	d2 := seedDraft(t, db, "u2", now)
	p1, _ := CreatePendingPayment(ctx, db, d1.ID, "u1", "254700000001", 500, d1.Snapshot(), now)
	p2, _ := CreatePendingPayment(ctx, db, d2.ID, "u2", "254700000002", 500, d2.Snapshot(), now)

	ok, err := MarkPaymentSuccess(ctx, db, p1, "QKX1234ABC", now)
	if err != nil || !ok {
		t.Fatalf("MarkPaymentSuccess: ok=%v err=%v", ok, err)
	}
	again := *p1
	again.Status = domain.PaymentPending
	if ok, err := MarkPaymentSuccess(ctx, db, &again, "QKX1234ABC", now); err != nil || ok {
		t.Fatalf("second transition must be a no-op: ok=%v err=%v", ok, err)
	}

	if _, err := MarkPaymentSuccess(ctx, db, p2, "QKX1234ABC", now); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reused receipt, got %v", err)
	}
	got, _ := GetPayment(ctx, db, p2.ID)
	if got.Status != domain.PaymentPending {
		t.Fatalf("losing payment must stay pending, got %s", got.Status)
	}

	found, err := FindPaymentByReceipt(ctx, db, "QKX1234ABC")
	if err != nil || found.ID != p1.ID {
		t.Fatalf("FindPaymentByReceipt: got=%v err=%v", found, err)
	}
}

func TestMarkPaymentFailed_DoesNotTouchTerminalRows(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)
	d := seedDraft(t, db, "u1", now)
	p, _ := CreatePendingPayment(ctx, db, d.ID, "u1", "254700000001", 500, d.Snapshot(), now)
	_, _ = MarkPaymentSuccess(ctx, db, p, "QKX1234ABC", now)

	if ok, err := MarkPaymentFailed(ctx, db, p.ID, "late failure", now); err != nil || ok {
		t.Fatalf("success row must not fail: ok=%v err=%v", ok, err)
	}
}

func TestDeletePendingForDraft_KeepsNamedRow(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)
	d := seedDraft(t, db, "u1", now)

	old, _ := CreatePendingPayment(ctx, db, d.ID, "u1", "254700000001", 500, d.Snapshot(), now)
	// Simulate a legacy row that predates the pending key.
	if err := db.Model(&domain.Payment{}).Where("id = ?", old.ID).Update("pending_key", nil).Error; err != nil {
		t.Fatalf("clear pending key: %v", err)
	}
	keep, _ := CreatePendingPayment(ctx, db, d.ID, "u1", "254700000001", 500, d.Snapshot(), now.Add(time.Minute))

	n, err := DeletePendingForDraft(ctx, db, d.ID, keep.ID)
	if err != nil || n != 1 {
		t.Fatalf("DeletePendingForDraft: n=%d err=%v", n, err)
	}
	if _, err := GetPayment(ctx, db, keep.ID); err != nil {
		t.Fatalf("kept row missing: %v", err)
	}
}

func TestSnapshotSurvivesDraftDeletion(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)
	d := seedDraft(t, db, "u1", now)
	d.Service, d.Date, d.Time, d.CustomerName = "Gold", "2025-12-10", "14:00", "Amina"
	if err := UpdateDraftCAS(ctx, db, d, now); err != nil {
		t.Fatalf("UpdateDraftCAS: %v", err)
	}
	_, _ = CreatePendingPayment(ctx, db, d.ID, "u1", "254700000001", 500, d.Snapshot(), now)
	_, _ = DeleteDraftByID(ctx, db, d.ID)

	p, err := LatestPaymentForCustomer(ctx, db, "u1")
	if err != nil {
		t.Fatalf("LatestPaymentForCustomer: %v", err)
	}
	if p.Snapshot.Service != "Gold" || p.Snapshot.CustomerName != "Amina" {
		t.Fatalf("snapshot lost: %+v", p.Snapshot)
	}
}

func TestListPendingPayments_OnlyCorrelated(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)
	d1 := seedDraft(t, db, "u1", now)
	d2 := seedDraft(t, db, "u2", now)
	p1, _ := CreatePendingPayment(ctx, db, d1.ID, "u1", "254700000001", 500, d1.Snapshot(), now)
	_, _ = CreatePendingPayment(ctx, db, d2.ID, "u2", "254700000002", 500, d2.Snapshot(), now)
	_ = SetCorrelation(ctx, db, p1.ID, "ws_CO_1", now)

	got, err := ListPendingPayments(ctx, db, now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("ListPendingPayments: %v", err)
	}
	if len(got) != 1 || got[0].ID != p1.ID {
		t.Fatalf("expected only correlated payment, got %+v", got)
	}
}
