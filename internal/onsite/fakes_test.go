package onsite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dori/terrain/internal/model"
)

var errNotFound = errors.New("not found")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeStore is an in-memory document store. updated_at strictly increases
// with every write, like the SQL store.
type fakeStore struct {
	clock *fakeClock

	mu      sync.Mutex
	docs    map[string]*model.Intervention
	subs    map[string][]chan model.Event
	fail    error
	updates int
	last    time.Time
}

func newFakeStore(clock *fakeClock, docs ...*model.Intervention) *fakeStore {
	s := &fakeStore{
		clock: clock,
		docs:  make(map[string]*model.Intervention),
		subs:  make(map[string][]chan model.Event),
	}
	for _, d := range docs {
		s.docs[d.ID] = d.Clone()
		if d.UpdatedAt.After(s.last) {
			s.last = d.UpdatedAt
		}
	}
	return s
}

func (s *fakeStore) Fetch(_ context.Context, id string) (*model.Intervention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNotFound, id)
	}
	return d.Clone(), nil
}

func (s *fakeStore) Update(_ context.Context, id string, patch model.Patch) (*model.Intervention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNotFound, id)
	}
	s.updates++
	patch.Apply(d)
	s.stampLocked(d)
	s.publishLocked(model.EventUpdate, d)
	return d.Clone(), nil
}

func (s *fakeStore) Subscribe(id string) (<-chan model.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan model.Event, 16)
	s.subs[id] = append(s.subs[id], ch)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			subs := s.subs[id]
			for i, c := range subs {
				if c == ch {
					s.subs[id] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}

// external simulates a write by another device. fn runs after the
// document is stamped so it can backdate updated_at.
func (s *fakeStore) external(id string, fn func(*model.Intervention)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.docs[id]
	s.stampLocked(d)
	fn(d)
	s.publishLocked(model.EventUpdate, d)
}

func (s *fakeStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.docs[id]
	delete(s.docs, id)
	s.publishLocked(model.EventDelete, d)
}

func (s *fakeStore) doc(id string) *model.Intervention {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[id].Clone()
}

func (s *fakeStore) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *fakeStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *fakeStore) stampLocked(d *model.Intervention) {
	now := s.clock.Now()
	if !now.After(s.last) {
		now = s.last.Add(time.Millisecond)
	}
	s.last = now
	d.UpdatedAt = now
}

func (s *fakeStore) publishLocked(kind model.EventKind, d *model.Intervention) {
	for _, ch := range s.subs[d.ID] {
		select {
		case ch <- model.Event{Kind: kind, Intervention: d.Clone()}:
		default:
		}
	}
}

type fakeProfiles struct {
	profiles map[string]model.TechnicianProfile
}

func (f fakeProfiles) Profile(_ context.Context, tech string) (model.TechnicianProfile, bool, error) {
	p, ok := f.profiles[tech]
	if !ok {
		return model.DefaultProfile(), false, nil
	}
	return p, true, nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	titles []string
}

func (a *fakeAlerter) Alert(title string, _ error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
}

func (a *fakeAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.titles)
}
