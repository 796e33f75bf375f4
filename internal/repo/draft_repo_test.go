package repo

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

func TestGetOrCreateDraft_CreatesOnceThenReturnsExisting(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)

	d1, created, err := GetOrCreateDraft(ctx, db, "u1", now)
	if err != nil || !created {
		t.Fatalf("first GetOrCreateDraft: created=%v err=%v", created, err)
	}
	if d1.Step != domain.StepCollectService || d1.Version != 1 {
		t.Fatalf("unexpected fresh draft: %+v", d1)
	}

	d2, created, err := GetOrCreateDraft(ctx, db, "u1", now.Add(time.Minute))
	if err != nil || created {
		t.Fatalf("second GetOrCreateDraft: created=%v err=%v", created, err)
	}
	if d2.ID != d1.ID {
		t.Fatalf("expected same draft id, got %s vs %s", d2.ID, d1.ID)
	}
}

func TestUpdateDraftCAS_BumpsVersionAndRejectsStaleWriter(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)

	d, _, err := GetOrCreateDraft(ctx, db, "u1", now)
	if err != nil {
		t.Fatalf("GetOrCreateDraft: %v", err)
	}
	stale := *d

	d.Service = "Gold"
	if err := UpdateDraftCAS(ctx, db, d, now.Add(time.Minute)); err != nil {
		t.Fatalf("UpdateDraftCAS: %v", err)
	}
	if d.Version != 2 {
		t.Fatalf("expected version 2, got %d", d.Version)
	}

	stale.CustomerName = "Amina"
	if err := UpdateDraftCAS(ctx, db, &stale, now.Add(2*time.Minute)); !errors.Is(err, ErrStaleVersion) {
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}

	got, err := GetDraftByCustomer(ctx, db, "u1")
	if err != nil {
		t.Fatalf("GetDraftByCustomer: %v", err)
	}
	if got.Service != "Gold" || got.CustomerName != "" || got.Version != 2 {
		t.Fatalf("stale write leaked into row: %+v", got)
	}
}

func TestDeleteDraftIfIdle_KeepsDraftWithPendingPayment(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)

	d, _, _ := GetOrCreateDraft(ctx, db, "u1", now)
	if _, err := CreatePendingPayment(ctx, db, d.ID, "u1", "254712345678", 500, d.Snapshot(), now); err != nil {
		t.Fatalf("CreatePendingPayment: %v", err)
	}

	deleted, err := DeleteDraftIfIdle(ctx, db, d.ID, d.Version)
	if err != nil || deleted {
		t.Fatalf("expected draft kept, deleted=%v err=%v", deleted, err)
	}

	d2, _, _ := GetOrCreateDraft(ctx, db, "u2", now)
	if deleted, err := DeleteDraftIfIdle(ctx, db, d2.ID, d2.Version+1); err != nil || deleted {
		t.Fatalf("expected version guard to keep draft, deleted=%v err=%v", deleted, err)
	}
	if deleted, err := DeleteDraftIfIdle(ctx, db, d2.ID, d2.Version); err != nil || !deleted {
		t.Fatalf("expected idle draft deleted, deleted=%v err=%v", deleted, err)
	}
}

func TestListSweepCandidates_FiltersByAge(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()

	old, _, _ := GetOrCreateDraft(ctx, db, "old", at(8, 0))
	_, _, _ = GetOrCreateDraft(ctx, db, "fresh", at(11, 0))

	got, err := ListSweepCandidates(ctx, db, at(10, 0), at(7, 0), "", 10)
	if err != nil {
		t.Fatalf("ListSweepCandidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != old.ID {
		t.Fatalf("expected only the old draft, got %+v", got)
	}
}

func TestListSweepCandidates_PagesByIDAndSkipsPending(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()

	var idle []string
	for _, c := range []string{"u1", "u2", "u3", "u4"} {
		d, _, _ := GetOrCreateDraft(ctx, db, c, at(8, 0))
		idle = append(idle, d.ID)
	}
	held, _, _ := GetOrCreateDraft(ctx, db, "held", at(8, 0))
	if _, err := CreatePendingPayment(ctx, db, held.ID, "held", "254712345678", 500, domain.DraftSnapshot{}, at(8, 0)); err != nil {
		t.Fatalf("CreatePendingPayment: %v", err)
	}

	var got []string
	after := ""
	for page := 0; page < 5; page++ {
		batch, err := ListSweepCandidates(ctx, db, at(10, 0), at(7, 0), after, 3)
		if err != nil {
			t.Fatalf("ListSweepCandidates: %v", err)
		}
		for _, d := range batch {
			got = append(got, d.ID)
		}
		if len(batch) < 3 {
			break
		}
		after = batch[len(batch)-1].ID
	}

	sort.Strings(idle)
	if diff := cmp.Diff(idle, got); diff != "" {
		t.Fatalf("candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteDraftByCustomer(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	_, _, _ = GetOrCreateDraft(ctx, db, "u1", at(9, 0))

	if ok, err := DeleteDraftByCustomer(ctx, db, "u1"); err != nil || !ok {
		t.Fatalf("first delete: ok=%v err=%v", ok, err)
	}
	if ok, err := DeleteDraftByCustomer(ctx, db, "u1"); err != nil || ok {
		t.Fatalf("second delete should be a no-op: ok=%v err=%v", ok, err)
	}
	if _, err := GetDraftByCustomer(ctx, db, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRestoreDraft_KeepsIDAndYieldsToLiveDraft(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	now := at(9, 0)

	d := seedDraft(t, db, "u1", now)
	d.Service = "Gold"
	if _, err := DeleteDraftByID(ctx, db, d.ID); err != nil {
		t.Fatalf("DeleteDraftByID: %v", err)
	}

	restored, err := RestoreDraft(ctx, db, &domain.Draft{ID: d.ID, CustomerID: "u1", Service: "Gold", Step: domain.StepCollectDate}, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("RestoreDraft: %v", err)
	}
	if restored.ID != d.ID || restored.Service != "Gold" || restored.Version != 1 {
		t.Fatalf("unexpected restored draft: %+v", restored)
	}

	again, err := RestoreDraft(ctx, db, &domain.Draft{ID: "other", CustomerID: "u1", Service: "Silver"}, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("second RestoreDraft: %v", err)
	}
	if again.ID != d.ID || again.Service != "Gold" {
		t.Fatalf("live draft should win, got %+v", again)
	}
}
