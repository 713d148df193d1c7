package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryBackend struct {
	mu   sync.Mutex
	now  func() time.Time
	data map[string]*memoryCounter
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryBackend creates an in-process counter backend. Only suitable
// when a single worker process talks to the upstream API.
func NewMemoryBackend() Backend {
	return &memoryBackend{
		now:  time.Now,
		data: make(map[string]*memoryCounter),
	}
}

func (m *memoryBackend) Incr(_ context.Context, bucket string, ttl time.Duration) (int64, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	counter, ok := m.data[bucket]
	if !ok || now.After(counter.expiresAt) {
		m.gc(now)
		counter = &memoryCounter{expiresAt: now.Add(ttl)}
		m.data[bucket] = counter
	}
	counter.count++
	return counter.count, nil
}

func (m *memoryBackend) gc(now time.Time) {
	for bucket, counter := range m.data {
		if now.After(counter.expiresAt) {
			delete(m.data, bucket)
		}
	}
}
