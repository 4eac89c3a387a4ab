package views

import (
	"context"
	"fmt"
	"sync"

	"github.com/dori/terrain/internal/billing"
	"github.com/dori/terrain/internal/lifecycle"
	"github.com/dori/terrain/internal/model"
	"github.com/dori/terrain/internal/observe"
	"github.com/dori/terrain/internal/timer"
)

type fakeCtrl struct {
	mu      sync.Mutex
	inv     *model.Intervention
	state   *observe.Value[*model.Intervention]
	reading *observe.Value[timer.Reading]
	calls   []string
	err     error
}

func newFakeCtrl(inv *model.Intervention) *fakeCtrl {
	return &fakeCtrl{
		inv:     inv,
		state:   observe.NewValue(inv),
		reading: observe.NewValue(timer.Reading{WorkText: "00:00:00", PauseText: "00:00:00", TotalText: "00:00:00"}),
	}
}

func (f *fakeCtrl) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeCtrl) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCtrl) Snapshot() *model.Intervention { return f.inv.Clone() }
func (f *fakeCtrl) Profile() model.TechnicianProfile { return model.DefaultProfile() }
func (f *fakeCtrl) State() *observe.Value[*model.Intervention] { return f.state }
func (f *fakeCtrl) Reading() *observe.Value[timer.Reading] { return f.reading }
func (f *fakeCtrl) Actions() []lifecycle.Action { return lifecycle.Actions(f.inv.Status) }
func (f *fakeCtrl) Breakdown() billing.Breakdown { return billing.Breakdown{} }
func (f *fakeCtrl) Play(context.Context) (bool, error) { return f.err == nil, f.record("play") }
func (f *fakeCtrl) Pause(context.Context) (bool, error) { return f.err == nil, f.record("pause") }
func (f *fakeCtrl) Stop(context.Context) (bool, error) { return f.err == nil, f.record("stop") }
func (f *fakeCtrl) RequestRevisit(context.Context) (bool, error) { return f.err == nil, f.record("revisit") }
func (f *fakeCtrl) Finish(context.Context) (bool, error) { return f.err == nil, f.record("finish") }
func (f *fakeCtrl) Resync(context.Context) (bool, error) { return false, f.record("resync") }

func (f *fakeCtrl) AddMaterial(_ context.Context, d string, p float64) (model.MaterialLine, error) {
	return model.MaterialLine{Description: d, Price: p}, f.record("material " + d + " " + money(p))
}

func (f *fakeCtrl) RemoveMaterial(_ context.Context, id string) (bool, error) {
	return true, f.record("remove-material " + id)
}

func (f *fakeCtrl) AddOrder(_ context.Context, name string) (model.OrderLine, error) {
	return model.OrderLine{Name: name}, f.record("order " + name)
}

func (f *fakeCtrl) RemoveOrder(_ context.Context, id string) (bool, error) {
	return true, f.record("remove-order " + id)
}

func (f *fakeCtrl) AdjustTravel(_ context.Context, delta int) (int, error) {
	if delta > 0 {
		return 1, f.record("travel+")
	}
	return 0, f.record("travel-")
}

func (f *fakeCtrl) AddManualSession(_ context.Context, h, m int) (model.TimeSession, bool, error) {
	return model.TimeSession{}, true, f.record(fmt.Sprintf("session %d:%02d", h, m))
}

func (f *fakeCtrl) RemoveSession(_ context.Context, s model.TimeSession) (bool, error) {
	return true, f.record("remove-session " + s.ID)
}
