// Package offline keeps timer state usable while the remote store lags or
// is unreachable.
//
// Every timer mutation is written to a local cache before the remote
// write. On load the cached entry is compared with the remote document and
// the newer one wins.
package offline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dori/terrain/internal/model"
	"go.uber.org/zap"
)

// KeyPrefix namespaces timer entries in the cache
const KeyPrefix = "timer:"

// Cache is the persistent local key/value store
type Cache interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Remove(key string) error
}

// Entry is the locally cached timer state of one intervention
type Entry struct {
	InterventionID string       `json:"interventionId"`
	MutatedAt      time.Time    `json:"mutatedAt"`
	Status         model.Status `json:"status"`
	Clock          model.Clock  `json:"clock"`
}

// Key returns the cache key of an intervention's timer entry
func Key(id string) string {
	return KeyPrefix + id
}

// Reconciler arbitrates between the local cache and remote documents
type Reconciler struct {
	cache  Cache
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the clock used to stamp entries
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// NewReconciler creates a reconciler backed by cache
func NewReconciler(cache Cache, opts ...Option) *Reconciler {
	r := &Reconciler{
		cache:  cache,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stores the current timer state of an intervention, stamped now.
// Callers write here before attempting the remote write.
func (r *Reconciler) Record(id string, status model.Status, clock model.Clock) (Entry, error) {
	e := Entry{
		InterventionID: id,
		MutatedAt:      r.now().UTC(),
		Status:         status,
		Clock:          clock.Clone(),
	}
	data, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode timer entry: %w", err)
	}
	if err := r.cache.Set(Key(id), data); err != nil {
		return Entry{}, fmt.Errorf("failed to cache timer state: %w", err)
	}
	return e, nil
}

// Pending returns the cached entry of an intervention, if any.
// A malformed entry is removed and reported as absent.
func (r *Reconciler) Pending(id string) (Entry, bool) {
	data, ok, err := r.cache.Get(Key(id))
	if err != nil {
		r.logger.Warn("timer cache unreadable", zap.String("intervention", id), zap.Error(err))
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil || e.InterventionID != id || !e.Status.Valid() {
		r.logger.Warn("dropping malformed timer cache entry", zap.String("intervention", id), zap.Error(err))
		if err := r.cache.Remove(Key(id)); err != nil {
			r.logger.Warn("failed to drop timer cache entry", zap.String("intervention", id), zap.Error(err))
		}
		return Entry{}, false
	}
	return e, true
}

// Merge reconciles a remote document with the cached timer state. When
// the cached entry is strictly newer than the remote document its status
// and timer fields are overlaid on a copy, and true is returned.
// Otherwise the remote document wins unchanged.
func (r *Reconciler) Merge(remote *model.Intervention) (*model.Intervention, bool) {
	if remote == nil {
		return nil, false
	}
	e, ok := r.Pending(remote.ID)
	if !ok || !e.MutatedAt.After(remote.UpdatedAt) {
		return remote, false
	}

	merged := remote.Clone()
	merged.Status = e.Status
	merged.Clock = e.Clock.Clone()
	r.logger.Debug("local timer state is newer than remote",
		zap.String("intervention", remote.ID),
		zap.Time("cached", e.MutatedAt),
		zap.Time("remote", remote.UpdatedAt))
	return merged, true
}

// Clear removes the cached entry once the remote holds the committed state
func (r *Reconciler) Clear(id string) error {
	if err := r.cache.Remove(Key(id)); err != nil {
		return fmt.Errorf("failed to clear timer cache: %w", err)
	}
	return nil
}
