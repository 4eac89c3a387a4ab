package main

import (
	"testing"
	"time"
)

func TestParseVisitDay(t *testing.T) {
	// Monday
	now := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"today", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"tomorrow", time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)},
		{"fri", time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)},
		{"monday", time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)},
		{"nextweek", time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)},
		{"2026-04-15", time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)},
		{"15/04/2026", time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)},
		{"15/04", time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)},
		{"01/02", time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseVisitDay(tt.in, now)
			if !ok {
				t.Fatalf("parseVisitDay(%q) failed", tt.in)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseVisitDay(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if _, ok := parseVisitDay("someday", now); ok {
		t.Error("expected someday to be rejected")
	}
}

func TestFormatVisitDay(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), "today"},
		{time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), "tomorrow"},
		{time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), "Fri, Mar 6"},
		{time.Date(2027, 1, 4, 0, 0, 0, 0, time.UTC), "Jan 4, 2027"},
	}
	for _, tt := range tests {
		if got := formatVisitDay(tt.in, now); got != tt.want {
			t.Errorf("formatVisitDay(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
