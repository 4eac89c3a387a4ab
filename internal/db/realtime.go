package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/dori/terrain/internal/model"
	"go.uber.org/zap"
)

// DefaultPollInterval is how often subscribed documents are re-checked for
// writes from other processes
const DefaultPollInterval = 2 * time.Second

// subscriberBuffer bounds each subscriber queue. When full the oldest
// snapshot is dropped: snapshots are full documents, the newest one wins.
const subscriberBuffer = 4

// hub delivers a snapshot after every mutation. Writes made through this
// DB are published immediately; writes from other processes are picked up
// by polling updated_at of subscribed documents.
type hub struct {
	db       *DB
	interval time.Duration

	mu     sync.Mutex
	subs   map[string]map[chan model.Event]struct{}
	seen   map[string]string
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func newHub(db *DB) *hub {
	return &hub{
		db:       db,
		interval: DefaultPollInterval,
		subs:     make(map[string]map[chan model.Event]struct{}),
		seen:     make(map[string]string),
	}
}

// Subscribe returns a stream of snapshots for one intervention and a
// function that ends the subscription and closes the stream
func (db *DB) Subscribe(id string) (<-chan model.Event, func()) {
	return db.hub.subscribe(id)
}

func (h *hub) subscribe(id string) (<-chan model.Event, func()) {
	ch := make(chan model.Event, subscriberBuffer)
	stamp, _ := h.stamp(id)

	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan model.Event]struct{})
	}
	h.subs[id][ch] = struct{}{}
	if _, ok := h.seen[id]; !ok {
		h.seen[id] = stamp
	}
	h.startLocked()
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[id], ch)
			if len(h.subs[id]) == 0 {
				delete(h.subs, id)
				delete(h.seen, id)
			}
			close(ch)
		})
	}
}

func (h *hub) publish(ev model.Event) {
	if ev.Intervention == nil {
		return
	}
	id := ev.Intervention.ID

	h.mu.Lock()
	defer h.mu.Unlock()
	if ev.Kind != model.EventDelete {
		h.seen[id] = formatTime(ev.Intervention.UpdatedAt)
	}
	for ch := range h.subs[id] {
		deliver(ch, model.Event{Kind: ev.Kind, Intervention: ev.Intervention.Clone()})
	}
}

// deliver never blocks: the oldest queued snapshot makes room
func deliver(ch chan model.Event, ev model.Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (h *hub) startLocked() {
	if h.cancel != nil || h.closed || h.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.poll(ctx, h.done)
}

func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (h *hub) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.checkOnce(ctx)
		}
	}
}

// checkOnce publishes documents whose updated_at moved since last seen
func (h *hub) checkOnce(ctx context.Context) {
	h.mu.Lock()
	seen := make(map[string]string, len(h.seen))
	for id, s := range h.seen {
		seen[id] = s
	}
	h.mu.Unlock()

	for id, last := range seen {
		stamp, err := h.stamp(id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if last != "" {
				h.publish(model.Event{Kind: model.EventDelete, Intervention: &model.Intervention{ID: id}})
				h.mu.Lock()
				if _, ok := h.seen[id]; ok {
					h.seen[id] = ""
				}
				h.mu.Unlock()
			}
		case err != nil:
			h.db.logger.Debug("realtime poll failed", zap.String("intervention", id), zap.Error(err))
		case stamp > last:
			inv, err := h.db.Fetch(ctx, id)
			if err != nil {
				h.db.logger.Debug("realtime fetch failed", zap.String("intervention", id), zap.Error(err))
				continue
			}
			h.publish(model.Event{Kind: model.EventUpdate, Intervention: inv})
		}
	}
}

func (h *hub) stamp(id string) (string, error) {
	var s string
	err := h.db.QueryRow(`SELECT updated_at FROM interventions WHERE id = ?`, id).Scan(&s)
	return s, err
}
