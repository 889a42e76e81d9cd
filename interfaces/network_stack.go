package interfaces

import (
	"context"
	"net/netip"
)

// Handle identifies a socket inside a network stack. Handles are opaque to the
// socket core; each stack decides how to map them to its own resources.
type Handle int32

// InvalidHandle is the handle of a socket that is not open.
const InvalidHandle Handle = -1

// Protocol selects the transport protocol of a socket.
type Protocol uint8

const (
	// ProtocolUDP opens a datagram socket.
	ProtocolUDP Protocol = iota + 1
)

func (p Protocol) String() string {
	switch p {
	case ProtocolUDP:
		return "udp"
	default:
		return "unknown"
	}
}

// INetworkStack is a strictly non-blocking datagram transport.
//
// SocketSendTo and SocketRecvFrom never wait: they return ErrWouldBlock when
// no progress is possible and the stack later invokes the callback registered
// with SocketAttach when readiness may have changed. A readiness callback is a
// hint only; a subsequent call may still return ErrWouldBlock.
type INetworkStack interface {
	// SocketOpen creates a new socket and returns its handle
	SocketOpen(proto Protocol) (Handle, error)

	// SocketClose releases the socket. The handle must not be used afterwards.
	SocketClose(h Handle) error

	// SocketBind binds the socket to a local address. A zero address binds
	// to all interfaces; a zero port selects an ephemeral port.
	SocketBind(h Handle, addr netip.AddrPort) error

	// SocketLocalAddr returns the address the socket is bound to
	SocketLocalAddr(h Handle) (netip.AddrPort, error)

	// SocketSendTo sends one datagram. Returns the number of bytes sent or ErrWouldBlock.
	SocketSendTo(h Handle, addr netip.AddrPort, data []byte) (int, error)

	// SocketRecvFrom receives one datagram into buf, truncating it if buf is
	// too small. Returns the bytes copied and the sender, or ErrWouldBlock.
	SocketRecvFrom(h Handle, buf []byte) (int, netip.AddrPort, error)

	// SocketAttach registers the readiness callback for h. A nil callback detaches.
	SocketAttach(h Handle, callback func())

	// GetHostByName resolves host to an address, returning ErrDNSFailure on failure
	GetHostByName(ctx context.Context, host string) (netip.Addr, error)

	// Name returns a short human-readable identifier for the stack
	Name() string

	// Close shuts down the stack and every socket it still owns
	Close() error
}
