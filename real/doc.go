// Package real provides a network stack backed by operating system UDP
// sockets.
//
// Stack implements interfaces.INetworkStack on Linux. Every socket is opened
// with SOCK_NONBLOCK, so sends and receives that cannot make progress fail
// with interfaces.ErrWouldBlock instead of waiting. Sockets are registered
// edge-triggered with an epoll set watched by one goroutine per stack; each
// readiness change invokes the callback registered with SocketAttach from
// that goroutine.
//
// Sockets are dual-stack IPv6 with IPv4-mapped addresses where the kernel
// supports it, and plain IPv4 otherwise. Callers always see unmapped
// addresses.
//
// # Usage
//
//	stack, err := real.New(nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stack.Close()
//
//	sock, err := dgram.Open(stack)
//
// # Name Resolution
//
// GetHostByName consults the Hosts table of the stack's configuration before
// the system resolver and prefers IPv4 answers.
//
// On platforms other than Linux, New reports interfaces.ErrUnsupported.
package real
