package dgram

import "sync/atomic"

// OnSocketEvent is the readiness hook the socket registers with its stack.
//
// It posts one signal to both the send and receive wait cells (each cell
// keeps at most two pending signals) and then calls the function registered
// with Attach. It never blocks and takes no lock a caller may hold, so a
// stack may invoke it from a poller goroutine, a netstack callback, or
// synchronously from inside another stack call.
func (s *UDPSocket) OnSocketEvent() {
	s.stats.events.Add(1)
	s.send.ready.Signal()
	s.recv.ready.Signal()

	if fn := s.observer.Load(); fn != nil {
		(*fn)()
	}
}

type socketStats struct {
	attempts     atomic.Uint64
	waits        atomic.Uint64
	timeouts     atomic.Uint64
	lockTimeouts atomic.Uint64
	events       atomic.Uint64
}

// Stats is a snapshot of a socket's operation counters.
type Stats struct {
	// Attempts counts calls into the stack's send and receive primitives
	Attempts uint64
	// Waits counts how often an operation blocked waiting for readiness
	Waits uint64
	// Timeouts counts operations that gave up with ErrWouldBlock after waiting
	Timeouts uint64
	// LockTimeouts counts operations that could not acquire their direction in time
	LockTimeouts uint64
	// Events counts readiness events delivered to OnSocketEvent
	Events uint64
}

// Stats returns a snapshot of the socket's counters.
func (s *UDPSocket) Stats() Stats {
	return Stats{
		Attempts:     s.stats.attempts.Load(),
		Waits:        s.stats.waits.Load(),
		Timeouts:     s.stats.timeouts.Load(),
		LockTimeouts: s.stats.lockTimeouts.Load(),
		Events:       s.stats.events.Load(),
	}
}

// PendingSignals returns the pending signal counts of the send and receive
// wait cells.
func (s *UDPSocket) PendingSignals() (send, recv int) {
	return s.send.ready.Count(), s.recv.ready.Count()
}
