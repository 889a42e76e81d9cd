package dgram

import (
	"context"
	"errors"
	"time"

	"github.com/opd-ai/dgram/interfaces"
	"github.com/opd-ai/dgram/internal/sema"
	"github.com/sirupsen/logrus"
)

// direction holds the per-direction serialization state of a socket.
type direction struct {
	op    string
	lock  *sema.Mutex
	ready *sema.WaitCell
}

func newDirection(op string) *direction {
	return &direction{
		op:    op,
		lock:  sema.NewMutex(),
		ready: sema.NewWaitCell(),
	}
}

// deadline tracks the blocking budget of one operation from its entry.
type deadline struct {
	timeout time.Duration
	at      time.Time
}

func newDeadline(timeout time.Duration) deadline {
	d := deadline{timeout: timeout}
	if timeout > 0 {
		d.at = time.Now().Add(timeout)
	}
	return d
}

// remaining returns the budget left in sema's convention: 0 when none is
// left (or the socket is non-blocking), negative when unbounded.
func (d deadline) remaining() time.Duration {
	if d.timeout == Forever {
		return Forever
	}
	if d.timeout == NonBlocking {
		return 0
	}
	r := time.Until(d.at)
	if r < 0 {
		return 0
	}
	return r
}

// primitive is one non-blocking stack call.
type primitive func(stack interfaces.INetworkStack, h interfaces.Handle) (int, error)

// run serializes call within dir and retries it until it stops reporting
// ErrWouldBlock or the socket's timeout elapses.
//
// The state lock is held around every stack call and released while waiting
// for a readiness event, so the notifier and the opposite direction never
// wait on a blocked caller. A wake-up is only a hint: the handle is checked
// and call retried after every one. A close during the call ends it with
// ErrNoSocket even when the socket has been reopened since.
func (s *UDPSocket) run(ctx context.Context, dir *direction, addr string, call primitive) (int, error) {
	s.mu.Lock()
	timeout := s.timeout
	s.mu.Unlock()

	budget := newDeadline(timeout)

	acquired, err := dir.lock.Lock(ctx, budget.remaining())
	if err != nil {
		return 0, interfaces.NewSocketError(dir.op, addr, err)
	}
	if !acquired {
		s.stats.lockTimeouts.Add(1)
		return 0, interfaces.NewSocketError(dir.op, addr, ErrWouldBlock)
	}
	defer dir.lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	generation := s.generation

	for {
		if s.handle == interfaces.InvalidHandle || s.generation != generation {
			return 0, interfaces.NewSocketError(dir.op, addr, ErrNoSocket)
		}

		s.stats.attempts.Add(1)
		n, err := call(s.stack, s.handle)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, interfaces.ErrWouldBlock) {
			// Transport errors are the caller's to interpret.
			return n, err
		}
		if timeout == NonBlocking {
			return 0, interfaces.NewSocketError(dir.op, addr, ErrWouldBlock)
		}

		wait := budget.remaining()
		if wait == 0 {
			return 0, s.timedOut(dir, addr, timeout)
		}

		s.stats.waits.Add(1)
		s.mu.Unlock()
		signaled, werr := dir.ready.Wait(ctx, wait)
		s.mu.Lock()

		if werr != nil {
			return 0, interfaces.NewSocketError(dir.op, addr, werr)
		}
		if !signaled {
			return 0, s.timedOut(dir, addr, timeout)
		}
	}
}

func (s *UDPSocket) timedOut(dir *direction, addr string, timeout time.Duration) error {
	s.stats.timeouts.Add(1)
	s.logger.WithFields(logrus.Fields{
		"function": "run",
		"op":       dir.op,
		"addr":     addr,
		"timeout":  timeout.String(),
	}).Debug("Operation timed out waiting for readiness")
	return interfaces.NewSocketError(dir.op, addr, ErrWouldBlock)
}
