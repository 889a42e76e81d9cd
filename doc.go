// Package dgram implements blocking, timeout-bounded UDP sockets on top of
// strictly non-blocking network stacks.
//
// A network stack (see the interfaces package) only ever polls: a send or
// receive either makes progress immediately or fails with ErrWouldBlock, and
// the stack later reports that readiness may have changed by calling the
// socket's OnSocketEvent hook. UDPSocket converts this into ordinary blocking
// calls with a caller-configured timeout.
//
// # Getting Started
//
// Open a socket on any stack, pick a timeout, and exchange datagrams:
//
//	stack := testing.NewSimulatedStack(nil)
//	defer stack.Close()
//
//	sock, err := dgram.Open(stack)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sock.Close()
//
//	if err := sock.Bind(netip.MustParseAddrPort("127.0.0.1:9000")); err != nil {
//	    log.Fatal(err)
//	}
//	sock.SetTimeout(2 * time.Second)
//
//	buf := make([]byte, limits.MaxReceiveBuffer)
//	n, from, err := sock.ReceiveFrom(buf)
//	if errors.Is(err, dgram.ErrWouldBlock) {
//	    // nothing arrived within two seconds
//	}
//
// # Timeouts
//
// The timeout applies to each call as a whole, measured from the moment the
// call is entered:
//
//   - NonBlocking (0): one attempt; ErrWouldBlock if the stack would block.
//   - a positive duration: the call blocks at most that long in total,
//     including time spent waiting for another caller of the same direction.
//   - Forever: the call blocks until it completes, the socket is closed or
//     the context passed to a *Context variant is done.
//
// A call that runs out of time returns ErrWouldBlock; the caller may retry.
//
// # Concurrency
//
// Any number of goroutines may use a socket. At most one send and one receive
// are in flight at a time: callers of the same direction are serialized with
// no FIFO guarantee, while a send and a receive proceed concurrently. Each
// stack call runs under the socket's internal state lock, which is released
// whenever a caller waits for readiness.
//
// # Readiness Events
//
// OnSocketEvent is registered with the stack when the socket is opened. Each
// event posts a signal to a bounded wait cell per direction (at most two
// pending signals), so any burst of events wakes a waiter at least once and
// never accumulates. A wake-up is treated as "try again": the operation is
// retried and may block again. Functions registered with Attach are called
// after the wait cells are signaled.
//
// # Errors
//
// Errors detected by the socket are *SocketError values wrapping one of
// ErrWouldBlock, ErrNoSocket, ErrDNSFailure or a size error from the limits
// package; use errors.Is to test for them. Errors reported by the stack for
// a send or receive are returned unchanged and are never retried.
package dgram
