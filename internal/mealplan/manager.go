// Package mealplan holds the weekly meal plan of one session.
//
// The Manager applies every change locally first and mirrors it to a
// docstore.Store in the background. Remote snapshots replace the local plan
// wholesale, so a pending local change that a snapshot does not yet contain
// is lost.
package mealplan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"smartchef/internal/docstore"
	"smartchef/internal/logging"
	"smartchef/internal/metrics"
	"smartchef/internal/recipe"

	"github.com/sirupsen/logrus"
)

// DefaultWriteTimeout bounds a single remote write.
const DefaultWriteTimeout = 10 * time.Second

const noticeBuffer = 16

// ErrClosed is returned by operations on a closed Manager.
var ErrClosed = errors.New("meal plan manager closed")

// Mode tells whether the plan is mirrored to a remote store.
type Mode int

const (
	ModeLocalOnly Mode = iota
	ModeSynced
)

func (m Mode) String() string {
	if m == ModeSynced {
		return "synced"
	}
	return "local-only"
}

// MarshalText encodes the mode as its name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Op names the operation a Notice is about.
type Op string

const (
	OpSave    Op = "save"
	OpRemove  Op = "remove"
	OpConnect Op = "connect"
	OpLoad    Op = "load"
)

// Messages shown to the user.
const (
	SaveFailedMessage    = "Failed to save recipe. Please try again."
	RemoveFailedMessage  = "Failed to remove recipe"
	ConnectFailedMessage = "Failed to connect to meal plan"
	LoadFailedMessage    = "Failed to load meal plan"
)

// Notice is a recoverable error the user may dismiss.
type Notice struct {
	Op      Op     `json:"op"`
	Slot    string `json:"slot,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Manager owns the meal plan of one session.
type Manager struct {
	store        docstore.Store
	log          logrus.FieldLogger
	writeTimeout time.Duration

	mu       sync.Mutex
	plan     Plan
	path     docstore.Path
	remote   bool
	disabled bool
	cancel   context.CancelFunc
	gen      uint64
	closed   bool
	drained  bool

	updates chan Plan
	notices chan Notice

	writes    sync.WaitGroup
	listeners sync.WaitGroup
}

// NewManager creates a Manager with an empty plan. A nil store keeps the
// plan local to this process.
func NewManager(store docstore.Store, log logrus.FieldLogger) *Manager {
	return &Manager{
		store:        store,
		log:          logging.WithComponent(log, "mealplan"),
		writeTimeout: DefaultWriteTimeout,
		plan:         make(Plan),
		updates:      make(chan Plan, 1),
		notices:      make(chan Notice, noticeBuffer),
	}
}

// Updates delivers a copy of the plan after every change. Only the latest
// undelivered copy is kept. The channel is closed by Close.
func (m *Manager) Updates() <-chan Plan {
	return m.updates
}

// Notices delivers recoverable errors. The channel is closed by Close.
func (m *Manager) Notices() <-chan Notice {
	return m.notices
}

// Plan returns a copy of the current plan.
func (m *Manager) Plan() Plan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plan.Clone()
}

// Mode reports whether local changes are written to the remote store.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remote {
		return ModeSynced
	}
	return ModeLocalOnly
}

// Save puts r into slot and returns once the local plan holds it. The whole
// plan, as of this call, is then merged into the remote document.
func (m *Manager) Save(slot recipe.SlotKey, r recipe.Recipe) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %q", recipe.ErrInvalidSlot, slot.String())
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.plan[slot] = r.Clone()
	m.publishLocked()
	doc := m.plan.Document()
	path, remote := m.path, m.remote
	if remote {
		m.writes.Add(1)
	}
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"slot": slot.String(), "recipe": r.Name}).Debug("Recipe saved to meal plan")
	if remote {
		go m.write(OpSave, slot, func(ctx context.Context) error {
			return m.store.MergeWrite(ctx, path, doc)
		})
	}
	return nil
}

// Remove clears slot. Clearing an empty slot is a no-op locally but is still
// sent to the remote store.
func (m *Manager) Remove(slot recipe.SlotKey) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %q", recipe.ErrInvalidSlot, slot.String())
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, ok := m.plan[slot]; ok {
		delete(m.plan, slot)
		m.publishLocked()
	}
	path, remote := m.path, m.remote
	if remote {
		m.writes.Add(1)
	}
	m.mu.Unlock()

	if remote {
		key := slot.String()
		go m.write(OpRemove, slot, func(ctx context.Context) error {
			return m.store.DeleteField(ctx, path, key)
		})
	}
	return nil
}

// ApplyRemote replaces the plan with the content of snap. An absent document
// yields an empty plan. Snapshots carrying an error leave the plan unchanged.
func (m *Manager) ApplyRemote(snap docstore.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyLocked(snap)
}

func (m *Manager) applyLocked(snap docstore.Snapshot) {
	if m.closed {
		return
	}
	if snap.Err != nil {
		m.log.WithError(snap.Err).Error("Error listening to meal plan")
		m.emitLocked(Notice{Op: OpLoad, Message: LoadFailedMessage, Err: snap.Err})
		return
	}

	plan := make(Plan)
	if snap.Exists {
		var unknown []string
		plan, unknown = FromDocument(snap.Document)
		if len(unknown) > 0 {
			m.log.WithField("fields", unknown).Warn("Ignoring unknown meal plan fields")
		}
	}
	m.plan = plan
	m.publishLocked()
}

// Bind mirrors the plan to the document at path until ctx ends, the path
// changes, or the Manager is closed. An incomplete path or a nil store leave
// the plan local-only. A failed subscription disables remote sync for the
// lifetime of the Manager.
func (m *Manager) Bind(ctx context.Context, path docstore.Path) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.remote && m.path == path {
		m.mu.Unlock()
		return nil
	}
	m.unbindLocked()
	m.path = path
	if m.store == nil || m.disabled || !path.Complete() {
		m.mu.Unlock()
		return nil
	}
	gen := m.gen
	m.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	ch, err := m.store.Subscribe(subCtx, path)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		cancel()
		if m.gen == gen && !m.closed {
			m.disabled = true
			m.log.WithError(err).WithField("path", path.String()).Error("Error setting up meal plan listener")
			m.emitLocked(Notice{Op: OpConnect, Message: ConnectFailedMessage, Err: err})
		}
		return fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}
	if m.gen != gen || m.closed {
		// Superseded while subscribing.
		cancel()
		return nil
	}

	m.cancel = cancel
	m.remote = true
	m.listeners.Add(1)
	go m.listen(subCtx, gen, ch)

	m.log.WithField("path", path.String()).Info("Meal plan listener attached")
	return nil
}

// unbindLocked tears down the current subscription and stops remote writes.
func (m *Manager) unbindLocked() {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.remote = false
}

func (m *Manager) listen(ctx context.Context, gen uint64, ch <-chan docstore.Snapshot) {
	defer m.listeners.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			m.mu.Lock()
			if m.gen != gen {
				m.mu.Unlock()
				return
			}
			m.applyLocked(snap)
			m.mu.Unlock()
			if snap.Err != nil {
				// Writes keep going; only the listener stops.
				return
			}
		}
	}
}

func (m *Manager) write(op Op, slot recipe.SlotKey, fn func(context.Context) error) {
	defer m.writes.Done()

	ctx, cancel := context.WithTimeout(context.Background(), m.writeTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		metrics.WriteFailed(string(op))
		message := SaveFailedMessage
		if op == OpRemove {
			message = RemoveFailedMessage
		}
		m.log.WithError(err).WithFields(logrus.Fields{"op": op, "slot": slot.String()}).Error("Error writing meal plan")
		m.emit(Notice{Op: op, Slot: slot.String(), Message: message, Err: err})
	}
}

// publishLocked replaces any undelivered update with the current plan.
func (m *Manager) publishLocked() {
	if m.drained {
		return
	}
	select {
	case <-m.updates:
	default:
	}
	m.updates <- m.plan.Clone()
}

func (m *Manager) emit(n Notice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitLocked(n)
}

// emitLocked drops the oldest notice when nobody is reading.
func (m *Manager) emitLocked(n Notice) {
	if m.drained {
		return
	}
	select {
	case m.notices <- n:
	default:
		select {
		case <-m.notices:
		default:
		}
		m.notices <- n
	}
}

// Wait blocks until all issued remote writes have finished.
func (m *Manager) Wait() {
	m.writes.Wait()
}

// Close tears down the subscription, waits for in-flight writes and closes
// the Updates and Notices channels. It is safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.unbindLocked()
	m.mu.Unlock()

	m.listeners.Wait()
	m.writes.Wait()

	m.mu.Lock()
	m.drained = true
	close(m.updates)
	close(m.notices)
	m.mu.Unlock()
}
