// Package ledger records completed work periods as priced time sessions.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/dori/terrain/internal/billing"
	"github.com/dori/terrain/internal/duration"
	"github.com/dori/terrain/internal/model"
	"github.com/google/uuid"
)

// Updater persists a partial update of an intervention
type Updater interface {
	Update(ctx context.Context, id string, patch model.Patch) (*model.Intervention, error)
}

// Ledger appends and removes sessions. Every change writes the whole
// session list and touches the in-memory intervention only once the
// write has succeeded.
type Ledger struct {
	store Updater
	now   func() time.Time
	newID func() string
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the clock used to date sessions
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithIDs overrides session id generation
func WithIDs(newID func() string) Option {
	return func(l *Ledger) {
		l.newID = newID
	}
}

// New creates a ledger writing through store
func New(store Updater, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Session prices a work period without recording it. Work is rounded up
// to the profile granularity before pricing.
func (l *Ledger) Session(workSeconds, pauseSeconds int64, p model.TechnicianProfile) model.TimeSession {
	if workSeconds < 0 {
		workSeconds = 0
	}
	if pauseSeconds < 0 {
		pauseSeconds = 0
	}
	rounded := duration.RoundUp(workSeconds, p.RoundingMinutes)

	return model.TimeSession{
		ID:            l.newID(),
		WorkDuration:  duration.Format(rounded, true),
		PauseDuration: duration.Format(pauseSeconds, true),
		Price:         billing.SessionPrice(workSeconds, p),
		Date:          l.now().UTC(),
	}
}

// Append prices a work period and adds it to the intervention's ledger.
// The price is frozen from then on.
func (l *Ledger) Append(ctx context.Context, inv *model.Intervention, workSeconds, pauseSeconds int64, p model.TechnicianProfile) (model.TimeSession, error) {
	return l.AppendWith(ctx, inv, workSeconds, pauseSeconds, p, model.Patch{})
}

// AppendWith is Append with extra fields committed in the same write,
// so closing a session and recording it cannot half succeed.
func (l *Ledger) AppendWith(ctx context.Context, inv *model.Intervention, workSeconds, pauseSeconds int64, p model.TechnicianProfile, extra model.Patch) (model.TimeSession, error) {
	s := l.Session(workSeconds, pauseSeconds, p)

	sessions := make([]model.TimeSession, 0, len(inv.TimeSessions)+1)
	sessions = append(sessions, inv.TimeSessions...)
	sessions = append(sessions, s)

	extra.TimeSessions = &sessions
	if err := l.write(ctx, inv, extra); err != nil {
		return model.TimeSession{}, err
	}
	return s, nil
}

// AddManual appends a session entered by hand. A zero duration is
// ignored and reported with false.
func (l *Ledger) AddManual(ctx context.Context, inv *model.Intervention, hours, minutes int, p model.TechnicianProfile) (model.TimeSession, bool, error) {
	total := duration.FromHoursMinutes(hours, minutes)
	if total <= 0 {
		return model.TimeSession{}, false, nil
	}
	s, err := l.Append(ctx, inv, total, 0, p)
	if err != nil {
		return model.TimeSession{}, false, err
	}
	return s, true, nil
}

// Remove deletes the first session equal to target on every field.
// Remaining sessions keep their order. Removing an unknown session
// returns false without writing.
func (l *Ledger) Remove(ctx context.Context, inv *model.Intervention, target model.TimeSession) (bool, error) {
	idx := -1
	for i, s := range inv.TimeSessions {
		if s.Equal(target) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	sessions := make([]model.TimeSession, 0, len(inv.TimeSessions)-1)
	sessions = append(sessions, inv.TimeSessions[:idx]...)
	sessions = append(sessions, inv.TimeSessions[idx+1:]...)

	if err := l.write(ctx, inv, model.Patch{TimeSessions: &sessions}); err != nil {
		return false, err
	}
	return true, nil
}

// WorkSeconds sums the stored (rounded) work durations
func WorkSeconds(sessions []model.TimeSession) int64 {
	var sum int64
	for _, s := range sessions {
		if secs, err := duration.Parse(s.WorkDuration); err == nil {
			sum += secs
		}
	}
	return sum
}

func (l *Ledger) write(ctx context.Context, inv *model.Intervention, patch model.Patch) error {
	if _, err := l.store.Update(ctx, inv.ID, patch); err != nil {
		return fmt.Errorf("failed to save time sessions: %w", err)
	}
	patch.Apply(inv)
	return nil
}
