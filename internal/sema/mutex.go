package sema

import (
	"context"
	"time"
)

// Mutex is a mutual-exclusion lock whose acquisition can be bounded by a
// timeout or a context. It gives no fairness guarantee among waiters.
type Mutex struct {
	ch chan struct{}
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{ch: make(chan struct{}, 1)}
}

// TryLock acquires the mutex if it is free and reports whether it did.
func (m *Mutex) TryLock() bool {
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Lock acquires the mutex, waiting up to d. It returns false with a nil
// error when d elapses first, and the context error when ctx is done first.
func (m *Mutex) Lock(ctx context.Context, d time.Duration) (bool, error) {
	if m.TryLock() {
		return true, nil
	}
	if d == 0 {
		return false, nil
	}

	var timeout <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case m.ch <- struct{}{}:
		return true, nil
	case <-timeout:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Unlock releases the mutex. Unlocking an unlocked Mutex panics.
func (m *Mutex) Unlock() {
	select {
	case <-m.ch:
	default:
		panic("sema: unlock of unlocked Mutex")
	}
}
