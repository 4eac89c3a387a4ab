package onsite

import (
	"context"
	"fmt"
	"time"

	"github.com/dori/terrain/internal/lifecycle"
	"github.com/dori/terrain/internal/model"
)

// Schedule plans a visit. Only OPEN and WAITING interventions can be
// planned; for any other status it returns false and writes nothing.
// at is the visit day and clock the time of day as HH:MM.
func Schedule(ctx context.Context, docs Documents, id string, at time.Time, clock string) (bool, error) {
	if _, err := time.Parse("15:04", clock); err != nil {
		return false, fmt.Errorf("invalid visit time %q, expected HH:MM", clock)
	}

	inv, err := docs.Fetch(ctx, id)
	if err != nil {
		return false, err
	}
	next, ok := lifecycle.Next(inv.Status, lifecycle.Schedule)
	if !ok {
		return false, nil
	}

	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	_, err = docs.Update(ctx, id, model.Patch{
		Status:        &next,
		PlannedAt:     &day,
		ScheduledTime: &clock,
	})
	if err != nil {
		return false, fmt.Errorf("failed to schedule intervention: %w", err)
	}
	return true, nil
}
