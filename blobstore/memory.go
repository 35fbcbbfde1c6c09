package blobstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation for tests and
// single-process deployments. Thread-safe for concurrent reads and writes.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	nowFn   func() time.Time
}

type memoryObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// NewMemoryStore creates a new in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		nowFn:   time.Now,
	}
}

// WithClock overrides the timestamp source for Put. Used in tests that
// depend on last-modified ordering.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.nowFn = now
	return m
}

// Get reads the full content of an object.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy to prevent external mutation.
	copied := make([]byte, len(obj.data))
	copy(copied, obj.data)
	return copied, nil
}

// Put writes an object atomically.
func (m *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]byte, len(data))
	copy(copied, data)
	m.objects[key] = memoryObject{
		data:         copied,
		contentType:  contentType,
		lastModified: m.nowFn(),
	}
	return nil
}

// Delete removes an object.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

// List returns all objects matching the prefix in ascending key order.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var infos []ObjectInfo
	for key, obj := range m.objects {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			infos = append(infos, ObjectInfo{Key: key, LastModified: obj.lastModified})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// ContentType returns the content type an object was stored with.
// Test helper.
func (m *MemoryStore) ContentType(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	return obj.contentType, ok
}
