package app

import (
	"context"
	"sync"
	"time"

	"smartchef/internal/docstore"
	"smartchef/internal/identity"
	"smartchef/internal/mealplan"
	"smartchef/internal/recipe"

	"github.com/sirupsen/logrus"
)

const watcherBuffer = 8

// EventType tells what an Event carries.
type EventType string

const (
	EventPlan   EventType = "plan"
	EventNotice EventType = "notice"
)

// Event is a change pushed to the watchers of a session.
type Event struct {
	Type   EventType
	Plan   mealplan.Plan
	Notice mealplan.Notice
}

// Session ties the identity of one client to its meal plan.
type Session struct {
	Key string

	provider *identity.Provider
	manager  *mealplan.Manager
	log      logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	id       identity.Identity
	lastSeen time.Time
	watchers map[chan Event]struct{}
	closed   bool
}

func newSession(parent context.Context, key, appID string, provider *identity.Provider, manager *mealplan.Manager, log logrus.FieldLogger, now time.Time) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		Key:      key,
		provider: provider,
		manager:  manager,
		log:      log.WithField("session", key),
		ctx:      ctx,
		cancel:   cancel,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		lastSeen: now,
		watchers: make(map[chan Event]struct{}),
	}
	go s.pump()
	go s.authenticate(appID)
	return s
}

// authenticate resolves the identity and binds the meal plan to its document.
// Until then the plan is local-only.
func (s *Session) authenticate(appID string) {
	defer close(s.ready)

	ids, err := s.provider.Start(s.ctx, s.Key)
	if err != nil {
		s.log.WithError(err).Error("failed to start identity provider")
		return
	}

	select {
	case <-s.ctx.Done():
		return
	case id, ok := <-ids:
		if !ok {
			return
		}
		s.mu.Lock()
		s.id = id
		s.mu.Unlock()

		if err := s.manager.Bind(s.ctx, docstore.Path{AppID: appID, UserID: id.ID}); err != nil {
			s.log.WithError(err).Warn("meal plan stays local")
		}
	}
}

// pump forwards manager changes to the watchers until the manager closes.
func (s *Session) pump() {
	defer close(s.done)

	updates, notices := s.manager.Updates(), s.manager.Notices()
	for updates != nil || notices != nil {
		select {
		case p, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			s.broadcast(Event{Type: EventPlan, Plan: p})
		case n, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			s.broadcast(Event{Type: EventNotice, Notice: n})
		}
	}
}

func (s *Session) broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers {
		select {
		case ch <- ev:
		default:
			s.log.WithField("event", ev.Type).Warn("watcher is slow, dropping event")
		}
	}
}

// Watch streams plan changes and notices until ctx is done or the session
// ends. The current plan is delivered first.
func (s *Session) Watch(ctx context.Context) <-chan Event {
	ch := make(chan Event, watcherBuffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	ch <- Event{Type: EventPlan, Plan: s.manager.Plan()}
	s.watchers[ch] = struct{}{}
	s.lastSeen = time.Now()
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[ch]; ok {
			delete(s.watchers, ch)
			close(ch)
		}
	}()
	return ch
}

// Identity waits for the identity to resolve. The second result is false
// when ctx ends first.
func (s *Session) Identity(ctx context.Context) (identity.Identity, bool) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return identity.Identity{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.id.ID != ""
}

// State is the sign-in state of the session.
func (s *Session) State() identity.State {
	return s.provider.State()
}

// Plan returns a copy of the current plan.
func (s *Session) Plan() mealplan.Plan {
	s.touch()
	return s.manager.Plan()
}

// Mode tells whether the plan is synced.
func (s *Session) Mode() mealplan.Mode {
	return s.manager.Mode()
}

// Save puts r into slot.
func (s *Session) Save(slot recipe.SlotKey, r recipe.Recipe) error {
	s.touch()
	return s.manager.Save(slot, r)
}

// Remove clears slot.
func (s *Session) Remove(slot recipe.SlotKey) error {
	s.touch()
	return s.manager.Remove(slot)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// idle reports whether nothing used the session since cutoff.
func (s *Session) idle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers) == 0 && s.lastSeen.Before(cutoff)
}

// close ends the subscription, flushes pending writes and closes watchers.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.ready
	s.manager.Close()
	<-s.done

	s.mu.Lock()
	for ch := range s.watchers {
		delete(s.watchers, ch)
		close(ch)
	}
	s.mu.Unlock()
}
