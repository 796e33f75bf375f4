package repo

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

func TestUpsertServices_InsertsThenRefreshes(t *testing.T) {
	db := newTestDB(t, &domain.Service{})
	ctx := context.Background()

	seed := []domain.Service{
		{Name: "Gold", DurationText: "1 hr", DurationMin: 60, Price: 3000, Deposit: 500},
		{Name: "Bronze", DurationText: "30 mins", DurationMin: 30, Price: 1000, Deposit: 200},
	}
	if err := UpsertServices(ctx, db, seed); err != nil {
		t.Fatalf("UpsertServices: %v", err)
	}
	if err := UpsertServices(ctx, db, []domain.Service{{Name: "Gold", DurationText: "90 mins", DurationMin: 90, Price: 3500, Deposit: 700}}); err != nil {
		t.Fatalf("UpsertServices refresh: %v", err)
	}

	got, err := ListServices(ctx, db)
	if err != nil {
		t.Fatalf("ListServices: %v", err)
	}
	want := []domain.Service{
		{Name: "Bronze", DurationText: "30 mins", DurationMin: 30, Price: 1000, Deposit: 200},
		{Name: "Gold", DurationText: "90 mins", DurationMin: 90, Price: 3500, Deposit: 700},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(domain.Service{}, "ID")); diff != "" {
		t.Fatalf("catalog mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsertServices_Empty(t *testing.T) {
	db := newTestDB(t)
	if err := UpsertServices(context.Background(), db, nil); err != nil {
		t.Fatalf("expected nil for empty input, got %v", err)
	}
}
