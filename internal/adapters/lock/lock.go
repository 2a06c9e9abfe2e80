// Package lock serializes reconciliation runs, within one process or across
// replicas sharing a Redis.
package lock

import (
	"context"
	"sync"
	"time"
)

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error

	// Refresh pushes the expiry a full TTL out. It returns ErrNotHeld once
	// the lease is gone.
	Refresh(ctx context.Context) error

	// TTL is the lease lifetime; zero means it never expires.
	TTL() time.Duration
}

// Locker hands out leases on named locks without waiting. A lock that is
// already held yields ErrLocked.
type Locker interface {
	Acquire(ctx context.Context, name string) (Lease, error)
}

// LocalLocker is a Locker for a single process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ Locker = (*LocalLocker)(nil)

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// Acquire takes name if it is free.
func (l *LocalLocker) Acquire(ctx context.Context, name string) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; ok {
		return nil, ErrLocked
	}
	l.held[name] = struct{}{}
	return &localLease{locker: l, name: name}, nil
}

type localLease struct {
	locker   *LocalLocker
	name     string
	once     sync.Once
	released bool
}

func (l *localLease) Release(context.Context) error {
	err := ErrNotHeld
	l.once.Do(func() {
		l.locker.mu.Lock()
		delete(l.locker.held, l.name)
		l.released = true
		l.locker.mu.Unlock()
		err = nil
	})
	return err
}

func (l *localLease) Refresh(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if l.released {
		return ErrNotHeld
	}
	return nil
}

func (l *localLease) TTL() time.Duration { return 0 }

// KeepAlive refreshes lease every third of its TTL until ctx ends. It
// returns nil when ctx ends and the refresh error otherwise; after an error
// the lease may belong to someone else. Leases without expiry only wait.
func KeepAlive(ctx context.Context, lease Lease) error {
	ttl := lease.TTL()
	if ttl <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := lease.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
