package invoice

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dori/terrain/internal/db"
	"github.com/dori/terrain/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finished(t *testing.T) (*db.DB, *model.Intervention) {
	t.Helper()
	database, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "test.db"), db.WithPollInterval(0))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	inv, err := database.CreateIntervention(ctx, db.NewIntervention{Assigned: "tech-1"})
	require.NoError(t, err)

	price := 9.5
	status := model.StatusEnd
	sessions := []model.TimeSession{{ID: "s1", WorkDuration: "00:30:00", PauseDuration: "00:00:00", Price: 14, Date: time.Now()}}
	materials := []model.MaterialLine{{ID: "m1", Description: "Siphon", Price: 15}}
	orders := []model.OrderLine{{ID: "o1", Name: "Joint", Status: model.OrderOrdered, Price: &price}}
	travel := 24.0
	total := 62.5
	inv, err = database.Update(ctx, inv.ID, model.Patch{
		Status:       &status,
		TimeSessions: &sessions,
		Materials:    &materials,
		Orders:       &orders,
		TravelCost:   &travel,
		TotalFinal:   &total,
	})
	require.NoError(t, err)
	return database, inv
}

func TestTotalsUseStoredValues(t *testing.T) {
	database, inv := finished(t)
	svc := New(database)

	got, err := svc.Totals(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.InDelta(t, 14.0, got.Time, 1e-9)
	assert.InDelta(t, 24.5, got.Material, 1e-9)
	assert.InDelta(t, 24.0, got.Travel, 1e-9)
	assert.InDelta(t, 62.5, got.Computed, 1e-9)
	assert.InDelta(t, 62.5, got.Final, 1e-9)
}

func TestEditLines(t *testing.T) {
	database, inv := finished(t)
	svc := New(database)
	ctx := context.Background()

	require.NoError(t, svc.EditSessionPrice(ctx, inv.ID, "s1", 20))
	require.NoError(t, svc.EditMaterialPrice(ctx, inv.ID, "m1", 10))
	require.NoError(t, svc.EditTravelCost(ctx, inv.ID, 12))
	require.NoError(t, svc.EditTotalFinal(ctx, inv.ID, 50))

	got, err := svc.Totals(ctx, inv.ID)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, got.Time, 1e-9)
	assert.InDelta(t, 19.5, got.Material, 1e-9)
	assert.InDelta(t, 12.0, got.Travel, 1e-9)
	assert.InDelta(t, 51.5, got.Computed, 1e-9)
	assert.InDelta(t, 50.0, got.Final, 1e-9)

	assert.ErrorIs(t, svc.EditSessionPrice(ctx, inv.ID, "nope", 1), ErrLineNotFound)
	assert.ErrorIs(t, svc.EditMaterialPrice(ctx, inv.ID, "nope", 1), ErrLineNotFound)
	assert.Error(t, svc.EditTravelCost(ctx, inv.ID, -1))
}

func TestBillThenPay(t *testing.T) {
	database, inv := finished(t)
	svc := New(database)
	ctx := context.Background()

	ok, err := svc.MarkPaid(ctx, inv.ID, "cheque")
	require.NoError(t, err)
	assert.False(t, ok, "cannot pay before billing")

	ok, err = svc.MarkBilled(ctx, inv.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.MarkPaid(ctx, inv.ID, "cheque 0042")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := database.Fetch(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, got.Status)
	assert.Equal(t, "cheque 0042", got.PaymentNote)
	assert.NotNil(t, got.BilledAt)
	assert.NotNil(t, got.PaidAt)

	assert.ErrorIs(t, svc.EditTotalFinal(ctx, inv.ID, 1), ErrPaid)
	assert.ErrorIs(t, svc.EditSessionPrice(ctx, inv.ID, "s1", 1), ErrPaid)

	ok, err = svc.MarkBilled(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
