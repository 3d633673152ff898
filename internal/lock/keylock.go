// Package lock provides per-key mutual exclusion for inventory cells.
package lock

import (
	"context"
	"sync"
)

type entry struct {
	// ch has capacity 1; holding the token means holding the lock.
	ch   chan struct{}
	refs int
}

// KeyLock is a process-wide lock table keyed by inventory-cell identity.
// Acquires on distinct keys never block each other. Entries are
// reference-counted and removed when the last holder or waiter leaves, so
// the table stays bounded for a bounded key space.
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *KeyLock {
	return &KeyLock{entries: make(map[string]*entry)}
}

// Acquire blocks until key is free, then marks it held. It returns a non-nil
// error only when ctx ends first; the table itself never fails.
func (l *KeyLock) Acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(key, e)
		return ctx.Err()
	}
}

// Release marks key free. Releasing a free or never-acquired key is a no-op.
func (l *KeyLock) Release(key string) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		l.mu.Unlock()
		return
	}
	select {
	case <-e.ch:
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
	default:
		// already free
	}
	l.mu.Unlock()
}

func (l *KeyLock) drop(key string, e *entry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}

// Len reports the number of live entries. Used by tests to check the table
// does not retain memory for inactive keys.
func (l *KeyLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
