package timer

import (
	"context"
	"sync"
	"time"

	"github.com/dori/terrain/internal/observe"
)

// DefaultInterval is the display refresh period
const DefaultInterval = time.Second

// Display runs the refresh loop that republishes a Reading every interval.
// It only reads: the supplied read function must not mutate timer state.
type Display struct {
	interval time.Duration
	read     func() Reading
	out      *observe.Value[Reading]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDisplay creates a stopped display loop
func NewDisplay(interval time.Duration, read func() Reading) *Display {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Display{
		interval: interval,
		read:     read,
		out:      observe.NewValue(read()),
	}
}

// Value exposes the published readings
func (d *Display) Value() *observe.Value[Reading] {
	return d.out
}

// Start begins refreshing. Starting an already running loop is a no-op.
func (d *Display) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(ctx, d.done)
}

// Running reports whether the loop is active
func (d *Display) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel != nil
}

// Stop cancels the loop and waits for it to exit, then publishes one
// final reading so the display reflects the latest state.
func (d *Display) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	d.Refresh()
}

// Refresh publishes a reading immediately
func (d *Display) Refresh() {
	d.out.Set(d.read())
}

// Close stops the loop; used on teardown
func (d *Display) Close() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (d *Display) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.Refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Refresh()
		}
	}
}
