package docstore

import "sync"

// subscriber is a one-slot mailbox: a newer snapshot replaces an undelivered one.
type subscriber struct {
	mu     sync.Mutex
	ch     chan Snapshot
	closed bool
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan Snapshot, 1)}
}

func (s *subscriber) offer(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// hub fans snapshots out to the subscribers of a path.
type hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*subscriber]struct{})}
}

func (h *hub) add(path string) *subscriber {
	sub := newSubscriber()
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[path]; !ok {
		h.subs[path] = make(map[*subscriber]struct{})
	}
	h.subs[path][sub] = struct{}{}
	return sub
}

func (h *hub) remove(path string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subs[path]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subs, path)
		}
	}
	sub.close()
}

func (h *hub) publish(path string, snap Snapshot) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[path] {
		sub.offer(Snapshot{Document: snap.Document.Clone(), Exists: snap.Exists, Err: snap.Err})
	}
	return len(h.subs[path])
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for path, subs := range h.subs {
		for sub := range subs {
			sub.close()
		}
		delete(h.subs, path)
	}
}
