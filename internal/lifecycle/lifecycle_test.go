package lifecycle

import (
	"testing"

	"github.com/dori/terrain/internal/model"
)

func TestNextFollowsEdges(t *testing.T) {
	tests := []struct {
		from   model.Status
		action Action
		want   model.Status
	}{
		{model.StatusOpen, Schedule, model.StatusPlanned},
		{model.StatusWaiting, Schedule, model.StatusPlanned},
		{model.StatusPlanned, Play, model.StatusStarted},
		{model.StatusStarted, Pause, model.StatusPaused},
		{model.StatusPaused, Play, model.StatusStarted},
		{model.StatusStarted, Stop, model.StatusStopped},
		{model.StatusPaused, Stop, model.StatusStopped},
		{model.StatusStarted, RequestRevisit, model.StatusWaiting},
		{model.StatusStopped, RequestRevisit, model.StatusWaiting},
		{model.StatusStopped, Finish, model.StatusEnd},
		{model.StatusPlanned, Finish, model.StatusEnd},
		{model.StatusEnd, Bill, model.StatusBilled},
		{model.StatusBilled, Pay, model.StatusPaid},
	}

	for _, tt := range tests {
		got, ok := Next(tt.from, tt.action)
		if !ok {
			t.Errorf("Next(%s, %s) not allowed", tt.from, tt.action)
			continue
		}
		if got != tt.want {
			t.Errorf("Next(%s, %s) = %s, want %s", tt.from, tt.action, got, tt.want)
		}
	}
}

func TestNextRejectsMissingEdges(t *testing.T) {
	tests := []struct {
		from   model.Status
		action Action
	}{
		{model.StatusOpen, Play},
		{model.StatusWaiting, Play},
		{model.StatusOpen, Finish},
		{model.StatusPaused, Pause},
		{model.StatusPlanned, Stop},
		{model.StatusPlanned, RequestRevisit},
		{model.StatusEnd, Play},
		{model.StatusPlanned, Bill},
		{model.StatusEnd, Pay},
		{model.StatusPaid, Schedule},
	}

	for _, tt := range tests {
		got, ok := Next(tt.from, tt.action)
		if ok {
			t.Errorf("Next(%s, %s) should not be allowed, got %s", tt.from, tt.action, got)
		}
		if got != tt.from {
			t.Errorf("Next(%s, %s) changed status to %s on a missing edge", tt.from, tt.action, got)
		}
	}
}

func TestPaidIsTerminal(t *testing.T) {
	if !IsTerminal(model.StatusPaid) {
		t.Error("PAID should be terminal")
	}
	for _, s := range model.AllStatuses {
		if s != model.StatusPaid && IsTerminal(s) {
			t.Errorf("%s should have outgoing transitions", s)
		}
	}
}

func TestActionsOrder(t *testing.T) {
	got := Actions(model.StatusStarted)
	want := []Action{Play, Pause, Stop, RequestRevisit, Finish}
	if len(got) != len(want) {
		t.Fatalf("Actions(STARTED) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Actions(STARTED) = %v, want %v", got, want)
		}
	}
}

func TestActiveStatuses(t *testing.T) {
	active := ActiveStatuses()
	if len(active) != 6 {
		t.Fatalf("expected 6 active statuses, got %v", active)
	}
	for _, s := range []model.Status{model.StatusEnd, model.StatusBilled, model.StatusPaid, "BOGUS"} {
		if IsActive(s) {
			t.Errorf("%s should not be active", s)
		}
	}
}
