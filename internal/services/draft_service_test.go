package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/extract"
)

func TestDraftService_GetOrCreateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.Drafts.Get(ctx, "cust-1")
	require.True(t, errors.Is(err, ErrDraftNotFound))

	d, err := f.Drafts.GetOrCreate(ctx, "cust-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), d.Version)
	require.Equal(t, domain.StepCollectService, d.Step)

	same, err := f.Drafts.GetOrCreate(ctx, "cust-1")
	require.NoError(t, err)
	require.Equal(t, d.ID, same.ID)

	deleted, err := f.Drafts.Delete(ctx, "cust-1")
	require.NoError(t, err)
	require.True(t, deleted)
	deleted, err = f.Drafts.Delete(ctx, "cust-1")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestDraftService_MergeKeepsUnsetFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, changed, err := f.Drafts.Merge(ctx, "cust-1", extract.Record{Service: str("Gold"), Date: str("tomorrow")})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, int64(2), d.Version)
	require.Equal(t, domain.StepCollectTime, d.Step)
	require.Nil(t, d.StartsAt)

	d, changed, err = f.Drafts.Merge(ctx, "cust-1", extract.Record{Time: str("2:30 pm")})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "Gold", d.Service)
	require.Equal(t, "tomorrow", d.Date)
	require.NotNil(t, d.StartsAt)
	require.Equal(t, "2025-12-02T11:30:00Z", d.StartsAt.UTC().Format("2006-01-02T15:04:05Z"))
	require.Equal(t, domain.StepCollectName, d.Step)

	again, changed, err := f.Drafts.Merge(ctx, "cust-1", extract.Record{Time: str("2:30 pm")})
	require.NoError(t, err)
	require.False(t, changed, "no new information")
	require.Equal(t, d.Version, again.Version)
}

func TestDraftService_UnparseableDateKeepsText(t *testing.T) {
	f := newFixture(t)
	d, changed, err := f.Drafts.Merge(context.Background(), "cust-1", extract.Record{Date: str("someday soon"), Time: str("14:00")})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "someday soon", d.Date)
	require.Nil(t, d.StartsAt)

	d, _, err = f.Drafts.Merge(context.Background(), "cust-1", extract.Record{Date: str("10 December")})
	require.NoError(t, err)
	require.Equal(t, f.local(14, 0), *d.StartsAt)
}

func TestDraftService_ConcurrentMergesKeepEveryField(t *testing.T) {
	f := newFixture(t)
	f.Drafts.MaxRetries = 50
	ctx := context.Background()
	_, err := f.Drafts.GetOrCreate(ctx, "cust-1")
	require.NoError(t, err)

	recs := []extract.Record{
		{Service: str("Gold")},
		{Date: str("2025-12-10")},
		{Time: str("14:00")},
		{Name: str("Amina")},
		{IsForSomeoneElse: boolp(true)},
		{RecipientName: str("Juma")},
		{RecipientPhone: str("0712345678")},
	}
	var wg sync.WaitGroup
	errs := make([]error, len(recs))
	for i, rec := range recs {
		wg.Add(1)
		go func(i int, rec extract.Record) {
			defer wg.Done()
			_, _, errs[i] = f.Drafts.Merge(ctx, "cust-1", rec)
		}(i, rec)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, fmt.Sprintf("merge %d", i))
	}

	d, err := f.Drafts.Get(ctx, "cust-1")
	require.NoError(t, err)
	require.Equal(t, "Gold", d.Service)
	require.Equal(t, "Amina", d.CustomerName)
	require.Equal(t, "Juma", d.RecipientName)
	require.Equal(t, "0712345678", d.RecipientPhone)
	require.True(t, d.ForSomeoneElse)
	require.NotNil(t, d.StartsAt)
	require.Equal(t, domain.StepReady, d.Step)
	require.Equal(t, int64(1+len(recs)), d.Version)
}

func TestMissingFieldsAndStep(t *testing.T) {
	tests := []struct {
		name string
		d    domain.Draft
		want []string
		step string
	}{
		{"empty", domain.Draft{}, []string{"service", "date", "time", "name"}, domain.StepCollectService},
		{"needs time and name", domain.Draft{Service: "Gold", Date: "today"}, []string{"time", "name"}, domain.StepCollectTime},
		{"self booking is complete", domain.Draft{Service: "Gold", Date: "today", Time: "2pm", CustomerName: "Amina"}, []string{}, domain.StepReady},
		{
			"someone else needs recipient",
			domain.Draft{Service: "Gold", Date: "today", Time: "2pm", CustomerName: "Amina", ForSomeoneElse: true},
			[]string{"recipient_name", "recipient_phone"},
			domain.StepCollectRecipientName,
		},
		{
			"someone else needs phone",
			domain.Draft{Service: "Gold", Date: "today", Time: "2pm", CustomerName: "Amina", ForSomeoneElse: true, RecipientName: "Juma"},
			[]string{"recipient_phone"},
			domain.StepCollectRecipientPhone,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, MissingFields(&tc.d))
			require.Equal(t, tc.step, Step(&tc.d))
		})
	}
}

func TestApplyRecipientDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, _, err := f.Drafts.Merge(ctx, "cust-1", extract.Record{Name: str("Amina")})
	require.NoError(t, err)
	require.NoError(t, f.Drafts.ApplyRecipientDefault(ctx, d))
	require.Equal(t, "Amina", d.RecipientName)

	stored, err := f.Drafts.Get(ctx, "cust-1")
	require.NoError(t, err)
	require.Equal(t, "Amina", stored.RecipientName)

	other, _, err := f.Drafts.Merge(ctx, "cust-2", extract.Record{Name: str("Amina"), IsForSomeoneElse: boolp(true)})
	require.NoError(t, err)
	require.NoError(t, f.Drafts.ApplyRecipientDefault(ctx, other))
	require.Empty(t, other.RecipientName)
}
