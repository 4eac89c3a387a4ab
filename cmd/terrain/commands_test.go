package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dori/terrain/internal/app"
	"github.com/dori/terrain/internal/billing"
	"github.com/dori/terrain/internal/config"
	"github.com/dori/terrain/internal/db"
	"github.com/dori/terrain/internal/invoice"
	"github.com/dori/terrain/internal/model"
	"github.com/dori/terrain/internal/onsite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	t.Setenv("TERRAIN_DATA_DIR", t.TempDir())
	t.Setenv("TERRAIN_POLL_INTERVAL", "0s")
	t.Setenv("TERRAIN_NOTIFICATIONS", "false")

	loaded, err := config.Load("")
	require.NoError(t, err)
	loaded.Technician = ""

	prevCfg, prevLogger := cfg, logger
	cfg, logger = loaded, zap.NewNop()
	t.Cleanup(func() { cfg, logger = prevCfg, prevLogger })

	a, err := app.New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// plannedWithCachedStart creates a PLANNED intervention whose timer was
// started on this device ten minutes ago but never reached the database.
func plannedWithCachedStart(t *testing.T, a *app.App) (string, time.Time) {
	t.Helper()
	ctx := context.Background()

	inv, err := a.DB.CreateIntervention(ctx, db.NewIntervention{
		Address: model.Address{Number: "12", Street: "Rue des Lilas", City: "Nantes"},
	})
	require.NoError(t, err)
	planned, err := onsite.Schedule(ctx, a.DB, inv.ID, time.Now(), "09:00")
	require.NoError(t, err)
	require.True(t, planned)

	now := time.Now()
	start := now.Add(-10 * time.Minute)
	_, err = a.Reconciler.Record(inv.ID, model.StatusStarted, model.Clock{StartTime: &start})
	require.NoError(t, err)
	return inv.ID, now
}

func TestLoadInterventionOverlaysCachedTimer(t *testing.T) {
	a := newTestApp(t)
	id, _ := plannedWithCachedStart(t, a)

	stored, err := a.DB.Fetch(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPlanned, stored.Status)

	inv, err := loadIntervention(context.Background(), a, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStarted, inv.Status)
	assert.True(t, inv.IsRunning())
}

func TestPrintInterventionShowsRunningTimer(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	id, now := plannedWithCachedStart(t, a)

	inv, err := loadIntervention(ctx, a, id)
	require.NoError(t, err)
	profile, err := lookupProfile(ctx, a, inv)
	require.NoError(t, err)

	var out bytes.Buffer
	printIntervention(&out, inv, profile, now)

	text := out.String()
	assert.Contains(t, text, "In progress")
	assert.NotContains(t, text, "Planned")
	assert.Contains(t, text, "Timer: running since")

	live := billing.SessionPrice(600, profile)
	require.Greater(t, live, 0.0)
	assert.Contains(t, text, formatEuros(live))
}

func TestPrintListUsesReconciledStatus(t *testing.T) {
	a := newTestApp(t)
	_, now := plannedWithCachedStart(t, a)

	invs, err := a.DB.List(context.Background())
	require.NoError(t, err)
	require.Len(t, invs, 1)
	reconcileAll(a, invs)

	var out bytes.Buffer
	printList(&out, invs, now)
	assert.Contains(t, out.String(), "In progress")
	assert.Contains(t, out.String(), "Rue des Lilas")
}

func TestPrintTotalsShowsOverride(t *testing.T) {
	var out bytes.Buffer
	printTotals(&out, invoice.Totals{Time: 28, Material: 10, Travel: 12, Computed: 50, Final: 45}, 1)

	text := out.String()
	assert.Contains(t, text, "Travel (1)")
	assert.Contains(t, text, "Lines")
	assert.Contains(t, text, "50.00 €")
	assert.Contains(t, text, "45.00 €")
}
