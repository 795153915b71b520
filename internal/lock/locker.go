// Package lock provides key-scoped mutual exclusion for the booking engine.
// Allocation against one slot must be serialized while different slots
// proceed in parallel, so every lock is taken on a key such as "slot:42".
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when a key stays busy past the locker's wait bound.
var ErrTimeout = errors.New("lock: wait timed out")

// Locker serializes work on a key.  Lock blocks until the key is free, the
// context is done or the wait bound passes.  The returned unlock must be
// called exactly once; extra calls are ignored.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Local is an in-process keyed mutex.  Entries are reference counted and
// dropped when no goroutine holds or waits on them, so idle keys do not
// accumulate.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	wait    time.Duration
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns a Local locker.  wait bounds how long Lock blocks; zero
// means only the caller's context bounds it.
func NewLocal(wait time.Duration) *Local {
	return &Local{entries: make(map[string]*localEntry), wait: wait}
}

// Lock implements Locker.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ent, ok := l.entries[key]
	if !ok {
		ent = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = ent
	}
	ent.refs++
	l.mu.Unlock()

	waitCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case ent.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-ent.ch
				l.release(key, ent)
			})
		}, nil
	case <-waitCtx.Done():
		l.release(key, ent)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrTimeout
	}
}

func (l *Local) release(key string, ent *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ent.refs--
	if ent.refs == 0 {
		delete(l.entries, key)
	}
}

// Len returns the number of keys currently held or waited on.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
