package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory is a TTL-bound LRU held in process memory.
type Memory struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	ll    *list.List               // most-recent at front
	items map[string]*list.Element // key -> element
	now   func() time.Time
}

type entry struct {
	key   string
	value string
	exp   time.Time
}

func NewMemory(maxKeys int, ttl time.Duration) *Memory {
	if maxKeys <= 0 {
		maxKeys = 1000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Memory{cap: maxKeys, ttl: ttl, ll: list.New(), items: make(map[string]*list.Element), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return "", false, nil
	}
	en := el.Value.(entry)
	if !m.now().Before(en.exp) {
		m.ll.Remove(el)
		delete(m.items, key)
		return "", false, nil
	}
	m.ll.MoveToFront(el)
	return en.value, true, nil
}

// Set stores value; a non-positive ttl uses the cache default.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if el, ok := m.items[key]; ok {
		el.Value = entry{key: key, value: value, exp: now.Add(ttl)}
		m.ll.MoveToFront(el)
		return nil
	}
	m.items[key] = m.ll.PushFront(entry{key: key, value: value, exp: now.Add(ttl)})

	for m.ll.Len() > m.cap {
		m.removeElement(m.ll.Back())
	}
	// soft cleanup of expired entries at the tail
	for t := m.ll.Back(); t != nil && !now.Before(t.Value.(entry).exp); t = m.ll.Back() {
		m.removeElement(t)
	}
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}

func (m *Memory) Health(_ context.Context) map[string]any {
	return map[string]any{
		"status": "healthy",
		"type":   "memory",
		"keys":   m.Len(),
	}
}

func (m *Memory) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	m.ll.Remove(el)
	delete(m.items, el.Value.(entry).key)
}
