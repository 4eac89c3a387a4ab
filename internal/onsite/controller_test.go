package onsite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dori/terrain/internal/cache"
	"github.com/dori/terrain/internal/lifecycle"
	"github.com/dori/terrain/internal/model"
	"github.com/dori/terrain/internal/offline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type harness struct {
	ctl        *Controller
	store      *fakeStore
	clock      *fakeClock
	reconciler *offline.Reconciler
	alerts     *fakeAlerter
}

func plannedDoc() *model.Intervention {
	return &model.Intervention{
		ID:        "inv-1",
		Status:    model.StatusPlanned,
		Assigned:  "tech-1",
		CreatedAt: t0.Add(-24 * time.Hour),
		UpdatedAt: t0.Add(-time.Hour),
	}
}

func newReconciler(t *testing.T, dir string, clock *fakeClock) *offline.Reconciler {
	t.Helper()
	store, err := cache.Open(dir)
	require.NoError(t, err)
	return offline.NewReconciler(store, offline.WithClock(clock.Now))
}

func setup(t *testing.T, doc *model.Intervention, opts ...Option) *harness {
	t.Helper()
	return setupWithCache(t, doc, t.TempDir(), &fakeClock{t: t0}, opts...)
}

func setupWithCache(t *testing.T, doc *model.Intervention, dir string, clock *fakeClock, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:      newFakeStore(clock, doc),
		clock:      clock,
		reconciler: newReconciler(t, dir, clock),
		alerts:     &fakeAlerter{},
	}
	opts = append([]Option{
		WithClock(clock.Now),
		WithAlerter(h.alerts),
		WithInterval(10 * time.Millisecond),
	}, opts...)
	h.ctl = New(h.store, nil, h.reconciler, opts...)
	require.NoError(t, h.ctl.Open(context.Background(), doc.ID))
	t.Cleanup(h.ctl.Close)
	return h
}

func TestStopCommitsRoundedSession(t *testing.T) {
	h := setup(t, plannedDoc())
	ctx := context.Background()

	changed, err := h.ctl.Play(ctx)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, model.StatusStarted, h.ctl.Snapshot().Status)

	h.clock.Advance(7 * time.Minute)
	changed, err = h.ctl.Stop(ctx)
	require.NoError(t, err)
	require.True(t, changed)

	inv := h.ctl.Snapshot()
	assert.Equal(t, model.StatusStopped, inv.Status)
	assert.Nil(t, inv.StartTime)
	assert.Nil(t, inv.PauseStartTime)
	assert.Zero(t, inv.TotalPause)
	require.Len(t, inv.TimeSessions, 1)
	assert.Equal(t, "00:10:00", inv.TimeSessions[0].WorkDuration)
	assert.InDelta(t, 4.6667, inv.TimeSessions[0].Price, 1e-4)

	_, pending := h.reconciler.Pending("inv-1")
	assert.False(t, pending, "cache cleared after commit")

	remote := h.store.doc("inv-1")
	assert.Equal(t, model.StatusStopped, remote.Status)
	assert.Len(t, remote.TimeSessions, 1)
}

func TestPauseTimeIsSplitOut(t *testing.T) {
	h := setup(t, plannedDoc())
	ctx := context.Background()

	_, err := h.ctl.Play(ctx)
	require.NoError(t, err)
	h.clock.Advance(10 * time.Minute)

	changed, err := h.ctl.Pause(ctx)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, model.StatusPaused, h.ctl.Snapshot().Status)

	// pausing twice changes nothing
	changed, err = h.ctl.Pause(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	h.clock.Advance(5 * time.Minute)
	_, err = h.ctl.Play(ctx)
	require.NoError(t, err)
	h.clock.Advance(5 * time.Minute)

	_, err = h.ctl.Stop(ctx)
	require.NoError(t, err)

	inv := h.ctl.Snapshot()
	require.Len(t, inv.TimeSessions, 1)
	assert.Equal(t, "00:15:00", inv.TimeSessions[0].WorkDuration)
	assert.Equal(t, "00:05:00", inv.TimeSessions[0].PauseDuration)
	assert.InDelta(t, 7.0, inv.TimeSessions[0].Price, 1e-9)
}

func TestStopWithNothingElapsedIsNoop(t *testing.T) {
	h := setup(t, plannedDoc())
	ctx := context.Background()

	_, err := h.ctl.Play(ctx)
	require.NoError(t, err)
	writes := h.store.updateCount()

	changed, err := h.ctl.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	inv := h.ctl.Snapshot()
	assert.Equal(t, model.StatusStarted, inv.Status)
	assert.Empty(t, inv.TimeSessions)
	assert.Equal(t, writes, h.store.updateCount())
}

func TestStopFailureKeepsTimerRunning(t *testing.T) {
	h := setup(t, plannedDoc())
	ctx := context.Background()

	_, err := h.ctl.Play(ctx)
	require.NoError(t, err)
	h.clock.Advance(20 * time.Minute)

	h.store.setFail(errors.New("network down"))
	changed, err := h.ctl.Stop(ctx)
	require.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, h.alerts.count())

	inv := h.ctl.Snapshot()
	assert.Equal(t, model.StatusStarted, inv.Status)
	assert.NotNil(t, inv.StartTime)
	assert.Empty(t, inv.TimeSessions)
	_, pending := h.reconciler.Pending("inv-1")
	assert.True(t, pending, "cache kept for retry")

	h.store.setFail(nil)
	changed, err = h.ctl.Stop(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, h.ctl.Snapshot().TimeSessions, 1)
}

func TestRequestRevisitRefusedWhileRunning(t *testing.T) {
	h := setup(t, plannedDoc())
	ctx := context.Background()

	_, err := h.ctl.Play(ctx)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	before := h.ctl.Snapshot()
	writes := h.store.updateCount()

	changed, err := h.ctl.RequestRevisit(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	after := h.ctl.Snapshot()
	assert.Equal(t, model.StatusStarted, after.Status)
	assert.Equal(t, before.Clock, after.Clock)
	assert.Equal(t, writes, h.store.updateCount())
}

func TestRequestRevisitAfterStop(t *testing.T) {
	h := setup(t, plannedDoc())
	ctx := context.Background()

	_, err := h.ctl.Play(ctx)
	require.NoError(t, err)
	h.clock.Advance(7 * time.Minute)
	_, err = h.ctl.Pause(ctx)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	changed, err := h.ctl.Stop(ctx)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Contains(t, h.ctl.Actions(), lifecycle.RequestRevisit)
	before := h.ctl.Snapshot()

	changed, err = h.ctl.RequestRevisit(ctx)
	require.NoError(t, err)
	require.True(t, changed)

	after := h.ctl.Snapshot()
	assert.Equal(t, model.StatusWaiting, after.Status)
	assert.Equal(t, before.Clock, after.Clock)
	assert.Equal(t, before.TimeSessions, after.TimeSessions)

	remote := h.store.doc("inv-1")
	assert.Equal(t, model.StatusWaiting, remote.Status)
	assert.Nil(t, remote.StartTime)
	assert.Zero(t, remote.TotalPause)
	assert.Len(t, remote.TimeSessions, 1)
}

func TestIllegalTransitionsAreNoops(t *testing.T) {
	doc := plannedDoc()
	doc.Status = model.StatusOpen
	h := setup(t, doc)
	ctx := context.Background()

	for name, action := range map[string]func(context.Context) (bool, error){
		"play":    h.ctl.Play,
		"pause":   h.ctl.Pause,
		"stop":    h.ctl.Stop,
		"revisit": h.ctl.RequestRevisit,
		"finish":  h.ctl.Finish,
	} {
		changed, err := action(ctx)
		assert.NoError(t, err, name)
		assert.False(t, changed, name)
	}
	assert.Equal(t, model.StatusOpen, h.ctl.Snapshot().Status)
	assert.Zero(t, h.store.updateCount())
}

func TestReloadRestoresRunningTimer(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{t: t0.Add(10 * time.Minute)}

	// the play was cached locally a few seconds after the remote snapshot
	recordClock := &fakeClock{t: t0.Add(5 * time.Second)}
	start := t0
	_, err := newReconciler(t, dir, recordClock).Record("inv-1", model.StatusStarted, model.Clock{StartTime: &start})
	require.NoError(t, err)

	doc := plannedDoc()
	doc.Status = model.StatusStopped
	doc.UpdatedAt = t0
	h := setupWithCache(t, doc, dir, clock)

	inv := h.ctl.Snapshot()
	assert.Equal(t, model.StatusStarted, inv.Status)
	require.NotNil(t, inv.StartTime)
	assert.Equal(t, int64(600), h.ctl.Reading().Get().Work)
	assert.True(t, h.ctl.Reading().Get().Running)

	pushed, err := h.ctl.Resync(context.Background())
	require.NoError(t, err)
	assert.True(t, pushed)
	assert.Equal(t, model.StatusStarted, h.store.doc("inv-1").Status)

	pushed, err = h.ctl.Resync(context.Background())
	require.NoError(t, err)
	assert.False(t, pushed, "nothing left to push")
}

func TestFinishFreezesBreakdown(t *testing.T) {
	doc := plannedDoc()
	doc.Status = model.StatusStopped
	doc.TravelCount = 2
	doc.Materials = []model.MaterialLine{{ID: "m1", Price: 15}, {ID: "m2", Price: 9.5}}
	doc.TimeSessions = []model.TimeSession{{ID: "s1", WorkDuration: "00:30:00", PauseDuration: "00:00:00", Price: 14}}
	h := setup(t, doc)
	ctx := context.Background()

	assert.InDelta(t, 62.5, h.ctl.Breakdown().Total, 1e-9)

	changed, err := h.ctl.Finish(ctx)
	require.NoError(t, err)
	require.True(t, changed)

	remote := h.store.doc("inv-1")
	assert.Equal(t, model.StatusEnd, remote.Status)
	assert.InDelta(t, 62.5, remote.TotalFinal, 1e-9)
	assert.InDelta(t, 24.0, remote.TravelCost, 1e-9)
	require.NotNil(t, remote.CompletedAt)
	assert.True(t, remote.CompletedAt.Equal(t0))

	_, err = h.ctl.AddMaterial(ctx, "Vis", 1)
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestFinishStopsRunningSession(t *testing.T) {
	h := setup(t, plannedDoc())
	ctx := context.Background()

	_, err := h.ctl.Play(ctx)
	require.NoError(t, err)
	h.clock.Advance(7 * time.Minute)

	changed, err := h.ctl.Finish(ctx)
	require.NoError(t, err)
	require.True(t, changed)

	inv := h.ctl.Snapshot()
	assert.Equal(t, model.StatusEnd, inv.Status)
	assert.Nil(t, inv.StartTime)
	require.Len(t, inv.TimeSessions, 1)
	assert.InDelta(t, 4.6667, inv.TotalFinal, 1e-4)
	assert.False(t, h.ctl.Reading().Get().Running)
}

func TestMaterialsOrdersAndTravel(t *testing.T) {
	h := setup(t, plannedDoc())
	ctx := context.Background()

	m, err := h.ctl.AddMaterial(ctx, "  Siphon  ", 14)
	require.NoError(t, err)
	assert.Equal(t, "Siphon", m.Description)
	_, err = h.ctl.AddMaterial(ctx, "Joint", 2.5)
	require.NoError(t, err)

	_, err = h.ctl.AddMaterial(ctx, "", 3)
	assert.Error(t, err)
	_, err = h.ctl.AddMaterial(ctx, "Free", -1)
	assert.Error(t, err)

	removed, err := h.ctl.RemoveMaterial(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = h.ctl.RemoveMaterial(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, removed)

	o, err := h.ctl.AddOrder(ctx, "Mitigeur")
	require.NoError(t, err)
	assert.Equal(t, model.OrderToOrder, o.Status)
	assert.Nil(t, o.Price)

	count, err := h.ctl.AdjustTravel(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = h.ctl.AdjustTravel(ctx, -5)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	count, err = h.ctl.AdjustTravel(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	remote := h.store.doc("inv-1")
	require.Len(t, remote.Materials, 1)
	assert.Equal(t, "Joint", remote.Materials[0].Description)
	require.Len(t, remote.Orders, 1)
	assert.Equal(t, 1, remote.TravelCount)
	assert.InDelta(t, 12.0, remote.TravelCost, 1e-9)

	removed, err = h.ctl.RemoveOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	b := h.ctl.Breakdown()
	assert.InDelta(t, 2.5, b.Material, 1e-9)
	assert.InDelta(t, 12.0, b.Travel, 1e-9)
	assert.InDelta(t, 14.5, b.Total, 1e-9)
}

func TestManualSessions(t *testing.T) {
	h := setup(t, plannedDoc())
	ctx := context.Background()

	_, added, err := h.ctl.AddManualSession(ctx, 0, 0)
	require.NoError(t, err)
	assert.False(t, added)

	s, added, err := h.ctl.AddManualSession(ctx, 1, 30)
	require.NoError(t, err)
	require.True(t, added)
	assert.InDelta(t, 42.0, s.Price, 1e-9)
	assert.Len(t, h.store.doc("inv-1").TimeSessions, 1)

	removed, err := h.ctl.RemoveSession(ctx, s)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, h.ctl.Snapshot().TimeSessions)
	assert.Empty(t, h.store.doc("inv-1").TimeSessions)
}

func TestPessimisticWriteFailureLeavesStateUntouched(t *testing.T) {
	h := setup(t, plannedDoc())
	ctx := context.Background()

	h.store.setFail(errors.New("offline"))
	_, err := h.ctl.AddMaterial(ctx, "Joint", 2)
	require.Error(t, err)
	assert.Empty(t, h.ctl.Snapshot().Materials)
	assert.Equal(t, 1, h.alerts.count())
}

func TestFailedTimerWriteRidesAlongNextWrite(t *testing.T) {
	h := setup(t, plannedDoc())
	ctx := context.Background()

	h.store.setFail(errors.New("offline"))
	changed, err := h.ctl.Play(ctx)
	require.Error(t, err)
	assert.True(t, changed, "local state moves on")
	assert.Equal(t, model.StatusStarted, h.ctl.Snapshot().Status)
	assert.Equal(t, 1, h.alerts.count())

	h.store.setFail(nil)
	h.clock.Advance(time.Minute)
	_, err = h.ctl.AddMaterial(ctx, "Joint", 2)
	require.NoError(t, err)

	remote := h.store.doc("inv-1")
	assert.Equal(t, model.StatusStarted, remote.Status)
	assert.NotNil(t, remote.StartTime)
	assert.Len(t, remote.Materials, 1)

	pushed, err := h.ctl.Resync(ctx)
	require.NoError(t, err)
	assert.False(t, pushed)
}

func TestRealtimeUpdateReplacesOtherFields(t *testing.T) {
	h := setup(t, plannedDoc())

	h.clock.Advance(time.Minute)
	h.store.external("inv-1", func(d *model.Intervention) {
		d.TravelCount = 5
		d.Orders = []model.OrderLine{{ID: "o1", Name: "Vanne", Status: model.OrderToOrder}}
	})

	require.Eventually(t, func() bool {
		return h.ctl.Snapshot().TravelCount == 5
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, h.ctl.Snapshot().Orders, 1)
}

func TestRealtimeKeepsNewerLocalTimer(t *testing.T) {
	h := setup(t, plannedDoc())
	ctx := context.Background()

	h.store.setFail(errors.New("offline"))
	h.clock.Advance(time.Minute)
	_, _ = h.ctl.Play(ctx)
	h.store.setFail(nil)

	// an older device writes a note; its snapshot still says PLANNED
	h.store.external("inv-1", func(d *model.Intervention) {
		d.PaymentNote = "call before"
		d.UpdatedAt = t0
	})

	require.Eventually(t, func() bool {
		return h.ctl.Snapshot().PaymentNote == "call before"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.StatusStarted, h.ctl.Snapshot().Status)
	assert.NotNil(t, h.ctl.Snapshot().StartTime)
}

func TestPublishedStateSettlesOnLatestSnapshot(t *testing.T) {
	h := setup(t, plannedDoc())
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			h.store.external("inv-1", func(d *model.Intervention) {
				d.PaymentNote = fmt.Sprintf("note %d", i)
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := h.ctl.AdjustTravel(ctx, 1)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	require.Eventually(t, func() bool {
		got, want := h.ctl.State().Get(), h.ctl.Snapshot()
		return got.TravelCount == want.TravelCount &&
			got.PaymentNote == want.PaymentNote &&
			got.UpdatedAt.Equal(want.UpdatedAt)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 50, h.ctl.Snapshot().TravelCount)
}

func TestRealtimeDeleteClosesController(t *testing.T) {
	h := setup(t, plannedDoc())

	h.store.remove("inv-1")
	require.Eventually(t, func() bool {
		_, err := h.ctl.Play(context.Background())
		return errors.Is(err, ErrDeleted)
	}, time.Second, 5*time.Millisecond)
}

func TestOperationsAfterClose(t *testing.T) {
	h := setup(t, plannedDoc())
	h.ctl.Close()
	h.ctl.Close()

	_, err := h.ctl.Play(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.ctl.AddOrder(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestProfileSelection(t *testing.T) {
	clock := &fakeClock{t: t0}
	store := newFakeStore(clock, plannedDoc())
	profiles := fakeProfiles{profiles: map[string]model.TechnicianProfile{
		"tech-1": {Technician: "tech-1", HourlyRate: 40, TravelUnitFee: 10, RoundingMinutes: 15},
	}}

	ctl := New(store, profiles, newReconciler(t, t.TempDir(), clock), WithClock(clock.Now))
	require.NoError(t, ctl.Open(context.Background(), "inv-1"))
	defer ctl.Close()
	assert.InDelta(t, 40.0, ctl.Profile().HourlyRate, 1e-9)

	fallback := model.TechnicianProfile{HourlyRate: 50, TravelUnitFee: 20, RoundingMinutes: 10}
	other := New(store, profiles, newReconciler(t, t.TempDir(), clock),
		WithClock(clock.Now), WithTechnician("nobody"), WithDefaultProfile(fallback))
	require.NoError(t, other.Open(context.Background(), "inv-1"))
	defer other.Close()
	assert.InDelta(t, 50.0, other.Profile().HourlyRate, 1e-9)
	assert.Equal(t, 10, other.Profile().RoundingMinutes)
}

func TestOpenMissingIntervention(t *testing.T) {
	clock := &fakeClock{t: t0}
	ctl := New(newFakeStore(clock), nil, newReconciler(t, t.TempDir(), clock))
	err := ctl.Open(context.Background(), "nope")
	assert.ErrorIs(t, err, errNotFound)
	ctl.Close()
}
