package notifications

import (
	"sync"
	"sync/atomic"
)

const subscriberBuffer = 32

// Hub fans committed notifications out to in-process subscribers. It never stores anything:
// a subscriber that falls behind is flagged and resynchronizes from the store using its cursor.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription
}

func NewHub() *Hub {
	return &Hub{subs: map[uint64]*Subscription{}}
}

type Subscription struct {
	id     uint64
	scope  string
	ch     chan Notification
	cursor atomic.Int64
	lagged atomic.Bool
	hub    *Hub
	once   sync.Once
}

// Subscribe registers a subscriber for scope whose cursor starts at afterID.
func (h *Hub) Subscribe(scope string, afterID int64) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &Subscription{id: h.nextID, scope: scope, ch: make(chan Notification, subscriberBuffer), hub: h}
	s.cursor.Store(afterID)
	h.subs[s.id] = s
	return s
}

// Publish offers n to every subscriber of its scope whose cursor is behind n.
func (h *Hub) Publish(n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.scope != n.RecipientScope || n.ID <= s.cursor.Load() {
			continue
		}
		select {
		case s.ch <- n:
		default:
			s.lagged.Store(true)
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (s *Subscription) C() <-chan Notification {
	return s.ch
}

func (s *Subscription) Scope() string {
	return s.scope
}

func (s *Subscription) Cursor() int64 {
	return s.cursor.Load()
}

// Advance moves the cursor forward after the subscriber has consumed id. It never moves backwards.
func (s *Subscription) Advance(id int64) {
	for {
		cur := s.cursor.Load()
		if id <= cur || s.cursor.CompareAndSwap(cur, id) {
			return
		}
	}
}

// TakeLagged reports and clears the overflow flag.
func (s *Subscription) TakeLagged() bool {
	return s.lagged.Swap(false)
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
	})
}
