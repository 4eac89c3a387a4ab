// Package onsite drives one open intervention while the technician is on
// site: the timer, the session ledger, materials, orders and travel.
//
// Timer changes are optimistic. They apply locally, go to the offline
// cache synchronously and are then written remotely; a failed remote
// write is alerted and retried by the next write or by Resync. Every
// other change is pessimistic and applies locally only once the remote
// write has succeeded.
package onsite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dori/terrain/internal/billing"
	"github.com/dori/terrain/internal/ledger"
	"github.com/dori/terrain/internal/lifecycle"
	"github.com/dori/terrain/internal/model"
	"github.com/dori/terrain/internal/observe"
	"github.com/dori/terrain/internal/offline"
	"github.com/dori/terrain/internal/timer"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by operations on a closed controller
	ErrClosed = errors.New("intervention is not open")
	// ErrDeleted is returned once the document was deleted remotely
	ErrDeleted = errors.New("intervention was deleted")
	// ErrNotEditable is returned for on-site edits after the work is finished
	ErrNotEditable = errors.New("intervention no longer accepts on-site changes")
)

// Documents reads and writes intervention documents
type Documents interface {
	Fetch(ctx context.Context, id string) (*model.Intervention, error)
	Update(ctx context.Context, id string, patch model.Patch) (*model.Intervention, error)
}

// Store is the remote document store with realtime delivery
type Store interface {
	Documents
	Subscribe(id string) (<-chan model.Event, func())
}

// ProfileSource supplies technician pricing. found is false when the
// technician has no stored profile.
type ProfileSource interface {
	Profile(ctx context.Context, technician string) (p model.TechnicianProfile, found bool, err error)
}

// Alerter surfaces failed remote writes to the user
type Alerter interface {
	Alert(title string, err error)
}

// Controller holds the live state of one intervention
type Controller struct {
	store      Store
	profiles   ProfileSource
	reconciler *offline.Reconciler
	ledger     *ledger.Ledger
	alerter    Alerter
	logger     *zap.Logger
	now        func() time.Time
	interval   time.Duration
	technician string
	defaults   model.TechnicianProfile

	// op serializes operations, including their remote writes
	op sync.Mutex

	// mu guards the fields below; never held across I/O
	mu      sync.Mutex
	id      string
	inv     *model.Intervention
	profile model.TechnicianProfile
	dirty   bool
	closed  bool
	deleted bool

	// pub orders publishes so the last value set is the latest snapshot
	pub      sync.Mutex
	state    *observe.Value[*model.Intervention]
	display  *timer.Display
	unsub    func()
	pumpDone chan struct{}

	closeOnce sync.Once
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAlerter sets where failed writes are reported
func WithAlerter(a Alerter) Option {
	return func(c *Controller) {
		c.alerter = a
	}
}

// WithClock overrides the clock
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithInterval sets the display refresh period
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.interval = d
	}
}

// WithTechnician prices the intervention with this technician's profile
// instead of the assigned technician's
func WithTechnician(name string) Option {
	return func(c *Controller) {
		c.technician = name
	}
}

// WithDefaultProfile sets the pricing used when no profile is stored
func WithDefaultProfile(p model.TechnicianProfile) Option {
	return func(c *Controller) {
		c.defaults = p.WithDefaults()
	}
}

// New creates a controller. Call Open before anything else.
func New(store Store, profiles ProfileSource, reconciler *offline.Reconciler, opts ...Option) *Controller {
	c := &Controller{
		store:      store,
		profiles:   profiles,
		reconciler: reconciler,
		logger:     zap.NewNop(),
		now:        time.Now,
		interval:   timer.DefaultInterval,
		defaults:   model.DefaultProfile(),
		state:      observe.NewValue[*model.Intervention](nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ledger = ledger.New(remote{c}, ledger.WithClock(c.now))
	return c
}

// Open loads the intervention, reconciles it with the offline cache and
// subscribes to realtime updates. The display loop starts when the
// reconciled intervention has a running session.
func (c *Controller) Open(ctx context.Context, id string) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	opened := c.inv != nil || c.closed
	c.mu.Unlock()
	if opened {
		return fmt.Errorf("controller already used for %s", c.id)
	}

	fetched, err := c.store.Fetch(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to open intervention: %w", err)
	}
	inv, local := c.reconciler.Merge(fetched)
	if local {
		c.logger.Info("restored timer state from local cache",
			zap.String("intervention", id),
			zap.String("status", string(inv.Status)))
	}

	profile := c.loadProfile(ctx, inv)

	c.mu.Lock()
	c.id = id
	c.inv = inv.Clone()
	c.profile = profile
	c.dirty = local
	c.mu.Unlock()

	display := timer.NewDisplay(c.interval, c.readClock)
	events, unsub := c.store.Subscribe(id)
	done := make(chan struct{})

	c.mu.Lock()
	c.display = display
	c.unsub = unsub
	c.pumpDone = done
	c.mu.Unlock()

	if inv.IsRunning() {
		display.Start()
	}
	go c.pump(events, done)

	c.publish()
	return nil
}

func (c *Controller) loadProfile(ctx context.Context, inv *model.Intervention) model.TechnicianProfile {
	tech := c.technician
	if tech == "" {
		tech = inv.Assigned
	}
	if c.profiles == nil || tech == "" {
		return c.defaults
	}
	p, found, err := c.profiles.Profile(ctx, tech)
	if err != nil {
		c.logger.Warn("failed to load technician profile, using defaults",
			zap.String("technician", tech), zap.Error(err))
		return c.defaults
	}
	if !found {
		return c.defaults
	}
	return p
}

// ID returns the open intervention's id
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Snapshot returns a copy of the current local state
func (c *Controller) Snapshot() *model.Intervention {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inv.Clone()
}

// Profile returns the pricing in effect
func (c *Controller) Profile() model.TechnicianProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// State publishes a copy of the intervention after every change.
// Subscribers must not mutate the published value, and must not call
// back into the controller since they run while a publish is in flight.
func (c *Controller) State() *observe.Value[*model.Intervention] {
	return c.state
}

// Reading publishes the live timer display
func (c *Controller) Reading() *observe.Value[timer.Reading] {
	return c.display.Value()
}

// Actions lists the lifecycle actions the current status offers
func (c *Controller) Actions() []lifecycle.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inv == nil {
		return nil
	}
	return lifecycle.Actions(c.inv.Status)
}

// Breakdown computes the live billing breakdown. A running session adds
// its provisional price to the time total.
func (c *Controller) Breakdown() billing.Breakdown {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inv == nil {
		return billing.Breakdown{}
	}
	work, _ := timer.Elapsed(c.inv.Clock, c.now())
	return billing.Compute(c.inv, c.profile, work, c.inv.IsRunning())
}

// Play starts a session, resumes a paused one, or reaffirms a running
// one. It reports whether anything changed.
func (c *Controller) Play(ctx context.Context) (bool, error) {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return false, err
	}
	next, ok := lifecycle.Next(c.inv.Status, lifecycle.Play)
	if !ok {
		c.mu.Unlock()
		return false, nil
	}

	now := c.now()
	clock := c.inv.Clock
	switch {
	case !timer.Running(clock):
		clock = timer.Start(now)
	case timer.Paused(clock):
		clock = timer.Resume(clock, now)
	case c.inv.Status == next:
		c.mu.Unlock()
		c.display.Start()
		return false, nil
	}
	c.inv.Status = next
	c.inv.Clock = clock.Clone()
	c.mu.Unlock()

	c.display.Start()
	c.publish()
	return true, c.pushTimer(ctx, next, clock)
}

// Pause opens a pause segment. The display keeps running so pause time
// accrues visibly.
func (c *Controller) Pause(ctx context.Context) (bool, error) {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return false, err
	}
	next, ok := lifecycle.Next(c.inv.Status, lifecycle.Pause)
	if !ok || !timer.Running(c.inv.Clock) || timer.Paused(c.inv.Clock) {
		c.mu.Unlock()
		return false, nil
	}
	clock := timer.Pause(c.inv.Clock, c.now())
	c.inv.Status = next
	c.inv.Clock = clock.Clone()
	c.mu.Unlock()

	c.publish()
	return true, c.pushTimer(ctx, next, clock)
}

// Stop closes the session and commits it to the ledger. Stopping with no
// elapsed time does nothing. When the commit fails the session keeps
// running and the cache entry is kept, so stop can be retried.
func (c *Controller) Stop(ctx context.Context) (bool, error) {
	c.op.Lock()
	defer c.op.Unlock()
	return c.stop(ctx)
}

func (c *Controller) stop(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return false, err
	}
	next, ok := lifecycle.Next(c.inv.Status, lifecycle.Stop)
	if !ok || !timer.Running(c.inv.Clock) {
		c.mu.Unlock()
		return false, nil
	}
	work, pause := timer.Elapsed(c.inv.Clock, c.now())
	if work+pause == 0 {
		c.mu.Unlock()
		return false, nil
	}
	inv := c.inv.Clone()
	profile := c.profile
	c.mu.Unlock()

	s, err := c.ledger.AppendWith(ctx, inv, work, pause, profile,
		model.Patch{Status: &next, Clock: &model.Clock{}})
	if err != nil {
		return false, err
	}

	if err := c.reconciler.Clear(c.id); err != nil {
		c.logger.Warn("failed to clear timer cache", zap.String("intervention", c.id), zap.Error(err))
	}
	c.display.Stop()
	c.logger.Info("session committed",
		zap.String("intervention", c.id),
		zap.String("work", s.WorkDuration),
		zap.Float64("price", s.Price))
	return true, nil
}

// RequestRevisit puts the intervention back to WAITING for another
// visit. It is refused while a session is running: stop first.
func (c *Controller) RequestRevisit(ctx context.Context) (bool, error) {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return false, err
	}
	if c.inv.IsRunning() {
		c.mu.Unlock()
		return false, nil
	}
	next, ok := lifecycle.Next(c.inv.Status, lifecycle.RequestRevisit)
	c.mu.Unlock()
	if !ok {
		return false, nil
	}

	if err := c.persist(ctx, model.Patch{Status: &next}); err != nil {
		return false, err
	}
	return true, nil
}

// Finish closes the intervention. A running session is stopped first,
// then the billing breakdown is frozen into the final total.
func (c *Controller) Finish(ctx context.Context) (bool, error) {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return false, err
	}
	_, ok := lifecycle.Next(c.inv.Status, lifecycle.Finish)
	running := c.inv.IsRunning()
	c.mu.Unlock()
	if !ok {
		return false, nil
	}

	if running {
		if _, err := c.stop(ctx); err != nil {
			return false, err
		}
	}

	c.mu.Lock()
	breakdown := billing.Compute(c.inv, c.profile, 0, false)
	status := model.StatusEnd
	completed := c.now().UTC()
	patch := model.Patch{
		Status:      &status,
		TotalFinal:  &breakdown.Total,
		TravelCost:  &breakdown.Travel,
		CompletedAt: &completed,
	}
	// zero elapsed stop leaves the clock open; close it with the finish
	stillRunning := c.inv.IsRunning()
	if stillRunning {
		patch.Clock = &model.Clock{}
	}
	c.mu.Unlock()

	if err := c.persist(ctx, patch); err != nil {
		return false, err
	}
	if stillRunning {
		if err := c.reconciler.Clear(c.id); err != nil {
			c.logger.Warn("failed to clear timer cache", zap.String("intervention", c.id), zap.Error(err))
		}
	}
	c.display.Stop()
	return true, nil
}

// AddMaterial records a material used on site
func (c *Controller) AddMaterial(ctx context.Context, description string, price float64) (model.MaterialLine, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return model.MaterialLine{}, fmt.Errorf("material needs a description")
	}
	if price < 0 {
		return model.MaterialLine{}, fmt.Errorf("material price must not be negative")
	}

	c.op.Lock()
	defer c.op.Unlock()

	inv, err := c.editable()
	if err != nil {
		return model.MaterialLine{}, err
	}
	added := c.now().UTC()
	line := model.MaterialLine{
		ID:          uuid.New().String(),
		Description: description,
		Price:       price,
		DateAdded:   &added,
	}
	materials := append(inv.Materials, line)
	if err := c.persist(ctx, model.Patch{Materials: &materials}); err != nil {
		return model.MaterialLine{}, err
	}
	return line, nil
}

// RemoveMaterial deletes a material line by id
func (c *Controller) RemoveMaterial(ctx context.Context, id string) (bool, error) {
	c.op.Lock()
	defer c.op.Unlock()

	inv, err := c.editable()
	if err != nil {
		return false, err
	}
	materials := make([]model.MaterialLine, 0, len(inv.Materials))
	for _, m := range inv.Materials {
		if m.ID != id {
			materials = append(materials, m)
		}
	}
	if len(materials) == len(inv.Materials) {
		return false, nil
	}
	if err := c.persist(ctx, model.Patch{Materials: &materials}); err != nil {
		return false, err
	}
	return true, nil
}

// AddOrder records a material that still has to be bought
func (c *Controller) AddOrder(ctx context.Context, name string) (model.OrderLine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.OrderLine{}, fmt.Errorf("order needs a name")
	}

	c.op.Lock()
	defer c.op.Unlock()

	inv, err := c.editable()
	if err != nil {
		return model.OrderLine{}, err
	}
	line := model.OrderLine{
		ID:     uuid.New().String(),
		Name:   name,
		Status: model.OrderToOrder,
	}
	orders := append(inv.Orders, line)
	if err := c.persist(ctx, model.Patch{Orders: &orders}); err != nil {
		return model.OrderLine{}, err
	}
	return line, nil
}

// RemoveOrder deletes an order by id
func (c *Controller) RemoveOrder(ctx context.Context, id string) (bool, error) {
	c.op.Lock()
	defer c.op.Unlock()

	inv, err := c.editable()
	if err != nil {
		return false, err
	}
	orders := make([]model.OrderLine, 0, len(inv.Orders))
	for _, o := range inv.Orders {
		if o.ID != id {
			orders = append(orders, o)
		}
	}
	if len(orders) == len(inv.Orders) {
		return false, nil
	}
	if err := c.persist(ctx, model.Patch{Orders: &orders}); err != nil {
		return false, err
	}
	return true, nil
}

// AdjustTravel changes the trip count by delta, never below zero, and
// stores the matching travel cost with it. It returns the new count.
func (c *Controller) AdjustTravel(ctx context.Context, delta int) (int, error) {
	c.op.Lock()
	defer c.op.Unlock()

	inv, err := c.editable()
	if err != nil {
		return 0, err
	}
	count := inv.TravelCount + delta
	if count < 0 {
		count = 0
	}
	if count == inv.TravelCount {
		return count, nil
	}
	cost := billing.TravelCost(count, c.Profile())
	if err := c.persist(ctx, model.Patch{TravelCount: &count, TravelCost: &cost}); err != nil {
		return inv.TravelCount, err
	}
	return count, nil
}

// AddManualSession records hand-entered work. Zero duration is ignored.
func (c *Controller) AddManualSession(ctx context.Context, hours, minutes int) (model.TimeSession, bool, error) {
	c.op.Lock()
	defer c.op.Unlock()

	inv, err := c.editable()
	if err != nil {
		return model.TimeSession{}, false, err
	}
	return c.ledger.AddManual(ctx, inv, hours, minutes, c.Profile())
}

// RemoveSession deletes the first ledger entry equal to s
func (c *Controller) RemoveSession(ctx context.Context, s model.TimeSession) (bool, error) {
	c.op.Lock()
	defer c.op.Unlock()

	inv, err := c.editable()
	if err != nil {
		return false, err
	}
	return c.ledger.Remove(ctx, inv, s)
}

// Resync pushes locally cached timer state that never reached the remote
// store. It reports whether a write was made.
func (c *Controller) Resync(ctx context.Context) (bool, error) {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return false, err
	}
	entry, pending := c.reconciler.Pending(c.id)
	stale := c.dirty || (pending && entry.MutatedAt.After(c.inv.UpdatedAt))
	status := c.inv.Status
	clock := c.inv.Clock.Clone()
	c.mu.Unlock()

	if !stale {
		return false, nil
	}
	if err := c.pushTimer(ctx, status, clock); err != nil {
		return false, err
	}
	return true, nil
}

// Close unsubscribes from realtime updates and stops the display loop
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		unsub, done, display := c.unsub, c.pumpDone, c.display
		c.mu.Unlock()

		if unsub != nil {
			unsub()
			<-done
		}
		if display != nil {
			display.Close()
		}
	})
}

func (c *Controller) usableLocked() error {
	switch {
	case c.deleted:
		return ErrDeleted
	case c.closed || c.inv == nil:
		return ErrClosed
	}
	return nil
}

// editable returns a working copy for list edits
func (c *Controller) editable() (*model.Intervention, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usableLocked(); err != nil {
		return nil, err
	}
	if !lifecycle.IsActive(c.inv.Status) {
		return nil, ErrNotEditable
	}
	return c.inv.Clone(), nil
}

// pushTimer records timer state in the cache, then writes it remotely.
// Local state is never rolled back.
func (c *Controller) pushTimer(ctx context.Context, status model.Status, clock model.Clock) error {
	if _, err := c.reconciler.Record(c.id, status, clock); err != nil {
		c.logger.Warn("failed to cache timer state", zap.String("intervention", c.id), zap.Error(err))
	}

	doc, err := c.store.Update(ctx, c.id, model.Patch{Status: &status, Clock: &clock})

	c.mu.Lock()
	if err != nil {
		c.dirty = true
	} else {
		c.dirty = false
		c.seen(doc)
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("timer write failed", zap.String("intervention", c.id), zap.Error(err))
		c.alert("Timer not saved", err)
		return fmt.Errorf("failed to save timer: %w", err)
	}
	return nil
}

// persist writes patch remotely and applies it locally once accepted.
// Timer state that failed to reach the store rides along.
func (c *Controller) persist(ctx context.Context, patch model.Patch) error {
	c.mu.Lock()
	if c.dirty {
		if patch.Status == nil {
			status := c.inv.Status
			patch.Status = &status
		}
		if patch.Clock == nil {
			clock := c.inv.Clock.Clone()
			patch.Clock = &clock
		}
	}
	c.mu.Unlock()

	doc, err := c.store.Update(ctx, c.id, patch)
	if err != nil {
		c.logger.Error("write failed", zap.String("intervention", c.id), zap.Error(err))
		c.alert("Changes not saved", err)
		return fmt.Errorf("failed to save intervention: %w", err)
	}

	c.mu.Lock()
	patch.Apply(c.inv)
	c.seen(doc)
	if patch.Clock != nil {
		c.dirty = false
	}
	c.mu.Unlock()

	c.publish()
	return nil
}

// seen advances the known remote version; mu must be held
func (c *Controller) seen(doc *model.Intervention) {
	if doc != nil && doc.UpdatedAt.After(c.inv.UpdatedAt) {
		c.inv.UpdatedAt = doc.UpdatedAt
	}
}

func (c *Controller) alert(title string, err error) {
	if c.alerter != nil {
		c.alerter.Alert(title, err)
	}
}

func (c *Controller) publish() {
	c.pub.Lock()
	defer c.pub.Unlock()
	c.state.Set(c.Snapshot())
}

// readClock feeds the display loop. It takes mu, so the loop must never
// be stopped while mu is held.
func (c *Controller) readClock() timer.Reading {
	c.mu.Lock()
	var clock model.Clock
	if c.inv != nil {
		clock = c.inv.Clock.Clone()
	}
	c.mu.Unlock()
	return timer.ReadingAt(clock, c.now())
}

// remote lets the ledger write through persist
type remote struct {
	c *Controller
}

func (r remote) Update(ctx context.Context, _ string, patch model.Patch) (*model.Intervention, error) {
	if err := r.c.persist(ctx, patch); err != nil {
		return nil, err
	}
	return r.c.Snapshot(), nil
}
