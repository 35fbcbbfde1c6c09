// Package lease serializes writers of a shared scope. A session or master
// index is replaced wholesale on every merge, so two concurrent writers for
// the same scope would silently lose one writer's vectors; every merge runs
// under an exclusive per-scope lease instead.
package lease

import (
	"context"
	"errors"
)

// ErrNotHeld is returned when a lease is released by a holder that no
// longer owns it (e.g. the lease expired and was taken over).
var ErrNotHeld = errors.New("lease: not held")

// Lease is an acquired exclusive claim on a scope.
type Lease interface {
	// Release gives the scope up. Releasing an expired or stolen lease
	// returns ErrNotHeld.
	Release(ctx context.Context) error
}

// Locker hands out exclusive per-scope leases. Acquire blocks until the
// scope is free or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, scope string) (Lease, error)
}
