package onsite

import (
	"github.com/dori/terrain/internal/model"
	"go.uber.org/zap"
)

// pump applies realtime snapshots until the subscription is closed
func (c *Controller) pump(events <-chan model.Event, done chan struct{}) {
	defer close(done)
	for ev := range events {
		c.apply(ev)
	}
}

// apply merges one snapshot. Everything but the timer replaces local
// state; timer fields go through the offline reconciler.
func (c *Controller) apply(ev model.Event) {
	if ev.Intervention == nil || ev.Intervention.ID != c.ID() {
		return
	}

	switch ev.Kind {
	case model.EventDelete:
		c.mu.Lock()
		c.deleted = true
		c.mu.Unlock()
		c.logger.Warn("intervention deleted while open", zap.String("intervention", ev.Intervention.ID))
		c.display.Close()
		c.publish()

	case model.EventUpdate, model.EventCreate:
		merged, local := c.reconciler.Merge(ev.Intervention)

		c.mu.Lock()
		if c.closed || c.deleted {
			c.mu.Unlock()
			return
		}
		// echoes of our own writes, or snapshots overtaken by them
		if !merged.UpdatedAt.After(c.inv.UpdatedAt) {
			c.mu.Unlock()
			return
		}
		c.inv = merged.Clone()
		if local {
			// remote timer fields are older than ours
			c.dirty = true
		}
		running := c.inv.IsRunning()
		c.mu.Unlock()

		if running {
			c.display.Start()
		} else if c.display.Running() {
			c.display.Stop()
		}
		c.publish()
	}
}
