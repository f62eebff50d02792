package facts

import (
	"container/list"
	"sync"
	"time"
)

// memo is a size-bounded TTL memo for resolved compound facts. Compound
// properties effectively never change, so the TTL only bounds drift
// from upstream corrections; eviction is least recently used. A
// non-positive capacity is unbounded.
type memo struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	entries  map[string]*list.Element
}

type memoEntry struct {
	compound string
	fact     Fact
	storedAt time.Time
}

func newMemo(capacity int, ttl time.Duration) *memo {
	return &memo{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (m *memo) get(compound string) (Fact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[compound]
	if !ok {
		return Fact{}, false
	}
	entry := el.Value.(*memoEntry)
	if time.Since(entry.storedAt) > m.ttl {
		m.order.Remove(el)
		delete(m.entries, compound)
		return Fact{}, false
	}
	m.order.MoveToFront(el)
	return entry.fact, true
}

func (m *memo) set(compound string, fact Fact) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[compound]; ok {
		entry := el.Value.(*memoEntry)
		entry.fact = fact
		entry.storedAt = time.Now()
		m.order.MoveToFront(el)
		return
	}

	if m.capacity > 0 && m.order.Len() >= m.capacity {
		if oldest := m.order.Back(); oldest != nil {
			m.order.Remove(oldest)
			delete(m.entries, oldest.Value.(*memoEntry).compound)
		}
	}
	m.entries[compound] = m.order.PushFront(&memoEntry{
		compound: compound,
		fact:     fact,
		storedAt: time.Now(),
	})
}

func (m *memo) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
