package sema

import (
	"context"
	"time"
)

// WaitCellBound is the maximum number of pending signals a WaitCell holds.
const WaitCellBound = 2

// WaitCell is a counting signal with a bounded count. Signals posted while
// the cell already holds WaitCellBound are discarded, so any number of
// readiness events between two waits collapses into at most two wake-ups
// while at least one signal always survives for the next waiter.
//
// A WaitCell is safe for concurrent use; Signal never blocks.
type WaitCell struct {
	tokens chan struct{}
}

// NewWaitCell returns an empty WaitCell.
func NewWaitCell() *WaitCell {
	return &WaitCell{tokens: make(chan struct{}, WaitCellBound)}
}

// Signal adds one pending signal if the count is at most WaitCellBound-1.
// It reports whether the count was incremented.
func (c *WaitCell) Signal() bool {
	select {
	case c.tokens <- struct{}{}:
		return true
	default:
		return false
	}
}

// Count returns the number of pending signals.
func (c *WaitCell) Count() int {
	return len(c.tokens)
}

// Wait consumes one pending signal, waiting up to d for one to arrive.
// It returns false with a nil error when d elapses first, and the context
// error when ctx is done first.
func (c *WaitCell) Wait(ctx context.Context, d time.Duration) (bool, error) {
	select {
	case <-c.tokens:
		return true, nil
	default:
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
	case <-c.tokens:
		return true, nil
	case <-timeout:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
