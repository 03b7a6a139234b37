package model

import (
	"errors"
	"testing"
	"time"
)

func TestBlockedUntilRoundsToInterval(t *testing.T) {
	start := time.Date(2025, 11, 28, 22, 0, 0, 0, time.UTC)
	cases := []struct {
		duration time.Duration
		want     time.Duration
	}{
		{25 * time.Minute, 30 * time.Minute},
		{60 * time.Minute, 60 * time.Minute},
		{75 * time.Minute, 90 * time.Minute},
		{80 * time.Minute, 90 * time.Minute},
	}
	for _, tc := range cases {
		if got := BlockedUntil(start, tc.duration, 30*time.Minute); !got.Equal(start.Add(tc.want)) {
			t.Fatalf("duration %s: expected +%s, got %s", tc.duration, tc.want, got.Sub(start))
		}
	}
}

func TestCheckTransition(t *testing.T) {
	allowed := [][2]string{
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusCancelled},
		{StatusConfirmed, StatusCompleted},
		{StatusConfirmed, StatusCancelled},
	}
	for _, tr := range allowed {
		if err := CheckTransition(tr[0], tr[1]); err != nil {
			t.Fatalf("%s -> %s should be allowed: %v", tr[0], tr[1], err)
		}
	}
	denied := [][2]string{
		{StatusCompleted, StatusConfirmed},
		{StatusCancelled, StatusConfirmed},
		{StatusConfirmed, StatusPending},
		{StatusConfirmed, StatusConfirmed},
	}
	for _, tr := range denied {
		if err := CheckTransition(tr[0], tr[1]); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s -> %s should be rejected, got %v", tr[0], tr[1], err)
		}
	}
}
