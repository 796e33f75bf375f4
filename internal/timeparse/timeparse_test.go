package timeparse

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func nairobi(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Africa/Nairobi")
	require.NoError(t, err)
	return loc
}

func TestNormalize_Formats(t *testing.T) {
	loc := nairobi(t)
	n := New(loc)
	// Wednesday 2025-12-03 10:00 local.
	now := time.Date(2025, 12, 3, 10, 0, 0, 0, loc)

	cases := []struct {
		date, clock string
		wantDate    string
		wantTime    string
	}{
		{"2025-12-10", "14:00", "2025-12-10", "14:00"},
		{"10/12/2025", "2pm", "2025-12-10", "14:00"},
		{"10-12-2025", "2:30 pm", "2025-12-10", "14:30"},
		{"10 Dec 2025", "14.00", "2025-12-10", "14:00"},
		{"Dec 10, 2025", "1430", "2025-12-10", "14:30"},
		{"December 10", "9am", "2025-12-10", "09:00"},
		{"10th of December", "noon", "2025-12-10", "12:00"},
		{"10th December", "12am", "2025-12-10", "00:00"},
		{"today", "16:45", "2025-12-03", "16:45"},
		{"tomorrow", "9", "2025-12-04", "09:00"},
		{"friday", "11:00", "2025-12-05", "11:00"},
		{"wednesday", "11:00", "2025-12-03", "11:00"},
		{"next wednesday", "11:00", "2025-12-10", "11:00"},
		{"Wed 10 Dec", "3 p.m.", "2025-12-10", "15:00"},
	}
	for _, tc := range cases {
		t.Run(tc.date+" "+tc.clock, func(t *testing.T) {
			got, err := n.Normalize(tc.date, tc.clock, now)
			require.NoError(t, err)
			require.Equal(t, tc.wantDate, got.Date)
			require.Equal(t, tc.wantTime, got.Time)
			require.Equal(t, time.UTC, got.UTC.Location())
		})
	}
}

func TestNormalize_ConvertsToUTC(t *testing.T) {
	n := New(nairobi(t))
	got, err := n.Normalize("2025-12-10", "14:00", time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, got.UTC.Equal(time.Date(2025, 12, 10, 11, 0, 0, 0, time.UTC)), "got %s", got.UTC)
}

func TestNormalize_IsFixedPoint(t *testing.T) {
	n := New(nairobi(t))
	now := time.Date(2025, 12, 3, 7, 0, 0, 0, time.UTC)
	inputs := [][2]string{
		{"tomorrow", "2pm"},
		{"10th December", "1430"},
		{"friday", "noon"},
		{"31/12/2025", "23:30"},
	}
	for _, in := range inputs {
		first, err := n.Normalize(in[0], in[1], now)
		require.NoError(t, err)
		// Re-normalizing much later must not move an explicit instant.
		second, err := n.Normalize(first.Date, first.Time, now.AddDate(1, 0, 0))
		require.NoError(t, err)
		require.True(t, first.UTC.Equal(second.UTC), "%v: %s != %s", in, first.UTC, second.UTC)
		require.Equal(t, first, second)
	}
}

func TestParseDate_YearlessRollsForward(t *testing.T) {
	n := New(time.UTC)
	now := time.Date(2025, 12, 20, 9, 0, 0, 0, time.UTC)

	got, err := n.ParseDate("10 December", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 12, 10, 0, 0, 0, 0, time.UTC), got)

	got, err = n.ParseDate("20 December", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC), got)

	got, err = n.ParseDate("3 jan", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), got)
}

func TestNormalize_Unparseable(t *testing.T) {
	n := New(time.UTC)
	now := time.Date(2025, 12, 3, 7, 0, 0, 0, time.UTC)
	cases := [][2]string{
		{"", "14:00"},
		{"2025-12-10", ""},
		{"someday", "14:00"},
		{"2025-13-40", "14:00"},
		{"2025-12-10", "25:00"},
		{"2025-12-10", "13pm"},
		{"2025-12-10", "14:75"},
		{"2025-12-10", "after lunch"},
	}
	for _, tc := range cases {
		_, err := n.Normalize(tc[0], tc[1], now)
		require.Error(t, err, "%v", tc)
		require.True(t, errors.Is(err, ErrUnparseable), "%v: %v", tc, err)
	}
}

func TestParseClock(t *testing.T) {
	cases := map[string][2]int{
		"14:00":     {14, 0},
		"9:05":      {9, 5},
		"930":       {9, 30},
		"12pm":      {12, 0},
		"12:30 AM":  {0, 30},
		"midnight":  {0, 0},
		"1400hrs":   {14, 0},
		"2 o'clock": {2, 0},
	}
	for in, want := range cases {
		h, m, err := ParseClock(in)
		require.NoError(t, err, in)
		require.Equal(t, want, [2]int{h, m}, in)
	}
}

func TestNew_NilLocationDefaultsToUTC(t *testing.T) {
	n := New(nil)
	got, err := n.Normalize("2025-12-10", "14:00", time.Now())
	require.NoError(t, err)
	require.Equal(t, "14:00", got.UTC.Format(TimeLayout))
}
