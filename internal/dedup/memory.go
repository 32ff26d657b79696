package dedup

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local TTL cache. It does not survive restarts.
type Memory struct {
	mu    sync.Mutex
	cache map[string]time.Time
	ttl   time.Duration
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	m := &Memory{
		cache: make(map[string]time.Time),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if at, ok := m.cache[key]; ok && now.Sub(at) < m.ttl {
		return true, nil
	}
	m.cache[key] = now
	return false, nil
}

// Len returns the number of tracked keys, expired ones included until the next sweep.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) cleanupLoop() {
	ticker := time.NewTicker(m.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.ttl)
	for k, t := range m.cache {
		if t.Before(cutoff) {
			delete(m.cache, k)
		}
	}
}
