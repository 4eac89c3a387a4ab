package offline

import (
	"testing"
	"time"

	"github.com/dori/terrain/internal/cache"
	"github.com/dori/terrain/internal/model"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newReconciler(t *testing.T, now time.Time) (*Reconciler, *cache.Store) {
	t.Helper()
	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	return NewReconciler(store, WithClock(func() time.Time { return now })), store
}

func remoteAt(updated time.Time) *model.Intervention {
	return &model.Intervention{
		ID:          "inv-1",
		Status:      model.StatusPlanned,
		TravelCount: 2,
		Materials:   []model.MaterialLine{{ID: "m1", Description: "Joint", Price: 3}},
		UpdatedAt:   updated,
	}
}

func TestMergeLocalNewerWins(t *testing.T) {
	// play happened at 09:00:10, the remote write never landed
	r, _ := newReconciler(t, t0.Add(10*time.Second))
	start := t0.Add(10 * time.Second)
	_, err := r.Record("inv-1", model.StatusStarted, model.Clock{StartTime: &start})
	require.NoError(t, err)

	remote := remoteAt(t0)
	got, local := r.Merge(remote)
	require.True(t, local)

	want := remote.Clone()
	want.Status = model.StatusStarted
	want.Clock = model.Clock{StartTime: &start}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("merged document mismatch (-want +got):\n%s", diff)
	}

	// the remote document itself is untouched
	assert.Equal(t, model.StatusPlanned, remote.Status)
	assert.Nil(t, remote.StartTime)
}

func TestMergeRemoteNewerWins(t *testing.T) {
	r, _ := newReconciler(t, t0)
	start := t0
	_, err := r.Record("inv-1", model.StatusStarted, model.Clock{StartTime: &start})
	require.NoError(t, err)

	remote := remoteAt(t0.Add(time.Minute))
	got, local := r.Merge(remote)
	assert.False(t, local)
	assert.Same(t, remote, got)
}

func TestMergeEqualTimestampsRemoteWins(t *testing.T) {
	r, _ := newReconciler(t, t0)
	_, err := r.Record("inv-1", model.StatusPaused, model.Clock{})
	require.NoError(t, err)

	_, local := r.Merge(remoteAt(t0))
	assert.False(t, local)
}

func TestMergeWithoutEntry(t *testing.T) {
	r, _ := newReconciler(t, t0)
	remote := remoteAt(t0)
	got, local := r.Merge(remote)
	assert.False(t, local)
	assert.Same(t, remote, got)

	got, local = r.Merge(nil)
	assert.Nil(t, got)
	assert.False(t, local)
}

func TestMalformedEntryIsDropped(t *testing.T) {
	r, store := newReconciler(t, t0)
	require.NoError(t, store.Set(Key("inv-1"), []byte("{broken")))

	remote := remoteAt(t0)
	got, local := r.Merge(remote)
	assert.False(t, local)
	assert.Same(t, remote, got)

	_, ok, err := store.Get(Key("inv-1"))
	require.NoError(t, err)
	assert.False(t, ok, "malformed entry should be removed")
}

func TestEntryForOtherInterventionIsDropped(t *testing.T) {
	r, store := newReconciler(t, t0)
	require.NoError(t, store.Set(Key("inv-1"),
		[]byte(`{"interventionId":"inv-2","mutatedAt":"2026-03-02T10:00:00Z","status":"STARTED","clock":{}}`)))

	_, ok := r.Pending("inv-1")
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	r, _ := newReconciler(t, t0)
	_, err := r.Record("inv-1", model.StatusStarted, model.Clock{})
	require.NoError(t, err)

	e, ok := r.Pending("inv-1")
	require.True(t, ok)
	assert.Equal(t, model.StatusStarted, e.Status)
	assert.True(t, e.MutatedAt.Equal(t0))

	require.NoError(t, r.Clear("inv-1"))
	_, ok = r.Pending("inv-1")
	assert.False(t, ok)

	// clearing twice is harmless
	require.NoError(t, r.Clear("inv-1"))
}

func TestRecordSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.Open(dir)
	require.NoError(t, err)

	start := t0
	pause := t0.Add(5 * time.Minute)
	clock := model.Clock{StartTime: &start, PauseStartTime: &pause, TotalPause: 30 * time.Second}
	before := NewReconciler(store, WithClock(func() time.Time { return t0.Add(6 * time.Minute) }))
	_, err = before.Record("inv-1", model.StatusPaused, clock)
	require.NoError(t, err)

	reopened, err := cache.Open(dir)
	require.NoError(t, err)
	after := NewReconciler(reopened)

	e, ok := after.Pending("inv-1")
	require.True(t, ok)
	if diff := cmp.Diff(clock, e.Clock); diff != "" {
		t.Errorf("clock mismatch (-want +got):\n%s", diff)
	}
}
