package onsite

import (
	"context"
	"testing"
	"time"

	"github.com/dori/terrain/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule(t *testing.T) {
	ctx := context.Background()
	doc := plannedDoc()
	doc.Status = model.StatusOpen
	store := newFakeStore(&fakeClock{t: t0}, doc)

	visit := time.Date(2026, 3, 5, 15, 30, 0, 0, time.Local)
	ok, err := Schedule(ctx, store, "inv-1", visit, "08:30")
	require.NoError(t, err)
	assert.True(t, ok)

	got := store.doc("inv-1")
	assert.Equal(t, model.StatusPlanned, got.Status)
	assert.Equal(t, "08:30", got.ScheduledTime)
	require.NotNil(t, got.PlannedAt)
	assert.Equal(t, "2026-03-05", got.PlannedAt.Format("2006-01-02"))

	// PLANNED cannot be scheduled again
	ok, err = Schedule(ctx, store, "inv-1", visit, "09:00")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "08:30", store.doc("inv-1").ScheduledTime)
}

func TestScheduleFromWaiting(t *testing.T) {
	doc := plannedDoc()
	doc.Status = model.StatusWaiting
	store := newFakeStore(&fakeClock{t: t0}, doc)

	ok, err := Schedule(context.Background(), store, "inv-1", t0, "14:00")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestScheduleRejectsBadTime(t *testing.T) {
	store := newFakeStore(&fakeClock{t: t0}, plannedDoc())

	_, err := Schedule(context.Background(), store, "inv-1", t0, "25:99")
	assert.Error(t, err)
	assert.Zero(t, store.updateCount())
}
