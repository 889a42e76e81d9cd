// Package interfaces defines the abstractions shared by the dgram socket core
// and the network stacks it drives.
//
// The central abstraction is [INetworkStack], a strictly non-blocking
// datagram transport. A stack never waits: when no datagram is queued or no
// buffer space is available it returns [ErrWouldBlock], and later reports that
// readiness may have changed by invoking the callback registered with
// SocketAttach. The dgram package turns this polling interface into blocking,
// timeout-bounded calls.
//
// # Implementations
//
// Three stacks satisfy [INetworkStack]:
//   - testing.SimulatedStack: in-memory datagram exchange with a delivery log,
//     used by unit tests and the CLI's "sim" mode.
//   - real.Stack: operating-system UDP sockets opened non-blocking, with an
//     epoll poller that delivers readiness events (Linux).
//   - userspace.Stack: an in-process gVisor netstack with a loopback NIC.
//
// The factory package selects one of them from a [StackConfig]:
//
//	config := &interfaces.StackConfig{
//	    Kind:    interfaces.StackSimulated,
//	    Timeout: 2 * time.Second,
//	}
//	if err := config.Validate(); err != nil {
//	    log.Fatalf("invalid config: %v", err)
//	}
//
// # Error Handling
//
// Stacks report conditions with the sentinel errors of this package:
//   - [ErrWouldBlock]: no progress possible right now, try again later
//   - [ErrNoSocket]: the handle is unknown or already closed
//   - [ErrDNSFailure]: GetHostByName could not resolve the name
//   - [ErrParameter]: an argument is malformed (bad address family, nil buffer)
//
// Any other error is a transport-level error and is passed to the caller
// unchanged by the socket core.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. The event callback may be
// invoked from any goroutine, including synchronously from inside another
// stack call, and must not be assumed to run with any lock held.
package interfaces
