// Package testing provides an in-memory network stack for deterministic
// testing of the dgram socket core.
//
// # Overview
//
// SimulatedStack implements interfaces.INetworkStack without touching the
// network. Sockets bind to addresses on a single simulated interface
// (127.0.0.1 unless StackConfig.LocalAddress says otherwise); a datagram sent
// to a bound address is queued on the receiving socket, and that socket's
// readiness callback fires once the stack's lock has been released. Like the
// real stacks, the simulation never blocks: an empty queue or a blocked
// writer yields interfaces.ErrWouldBlock.
//
// # Simulation vs Real Implementation
//
//   - Simulation (this package): datagrams are exchanged in memory and
//     recorded in a delivery log. Used for unit tests and the CLI's sim mode.
//
//   - Real (real package): operating-system UDP sockets.
//
//   - Userspace (userspace package): an in-process gVisor netstack.
//
// All implementations conform to interfaces.INetworkStack, allowing seamless
// switching via the factory package.
//
// # Usage
//
//	stack := testing.NewSimulatedStack(nil)
//	defer stack.Close()
//
//	sock, _ := dgram.Open(stack)
//	sock.Bind(netip.MustParseAddrPort("127.0.0.1:7000"))
//
//	// Drive readiness by hand
//	h := stack.Handles()[0]
//	stack.Inject(h, netip.MustParseAddrPort("127.0.0.1:9"), []byte("ping"))
//
// # Fault Injection
//
// Tests control the stack through:
//
//   - Inject: queue a datagram on a socket and fire its callback
//   - SetWriteBlocked: make sends would-block until unblocked
//   - FailNext: make the next send or receive return a transport error
//   - Notify: fire a spurious readiness event
//
// # Delivery Logs
//
// Every send and Inject is recorded in a DeliveryRecord (source, destination, size,
// timestamp, whether it was queued and why not). Use GetDeliveryLog to
// retrieve the log, and ClearDeliveryLog to reset between test cases.
//
// # Thread Safety
//
// All methods on SimulatedStack are safe for concurrent use from multiple
// goroutines. Readiness callbacks are never invoked with the stack's mutex
// held.
package testing
