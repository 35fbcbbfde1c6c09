package lease

import (
	"context"
	"sync"
)

// MemoryLocker is an in-process Locker for tests and single-process
// deployments. Leases never expire; Release must be called.
type MemoryLocker struct {
	mu     sync.Mutex
	scopes map[string]chan struct{}
}

// NewMemoryLocker creates a new in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		scopes: make(map[string]chan struct{}),
	}
}

// Acquire blocks until the scope is free or ctx is done.
func (l *MemoryLocker) Acquire(ctx context.Context, scope string) (Lease, error) {
	l.mu.Lock()
	tokens, ok := l.scopes[scope]
	if !ok {
		tokens = make(chan struct{}, 1)
		tokens <- struct{}{}
		l.scopes[scope] = tokens
	}
	l.mu.Unlock()

	select {
	case <-tokens:
		return &memoryLease{tokens: tokens}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type memoryLease struct {
	tokens   chan struct{}
	released bool
	mu       sync.Mutex
}

func (l *memoryLease) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return ErrNotHeld
	}
	l.released = true
	l.tokens <- struct{}{}
	return nil
}
