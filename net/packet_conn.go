package net

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/opd-ai/dgram"
	"github.com/opd-ai/dgram/interfaces"
	"github.com/sirupsen/logrus"
)

// PacketConn implements net.PacketConn on top of a dgram.UDPSocket so that
// any network stack can be used with code written against the standard
// library. Read and write deadlines bound each call through the socket's
// context variants; the socket itself is switched to blocking mode.
type PacketConn struct {
	sock *dgram.UDPSocket

	// Connection state
	closed bool
	mu     sync.RWMutex

	// Deadline management
	readDeadline  time.Time
	writeDeadline time.Time
	deadlineMu    sync.RWMutex

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// timeProvider provides time for deadline checks (injectable for testing)
	timeProvider TimeProvider
}

// NewPacketConn wraps an open socket. The PacketConn takes ownership of the
// socket and closes it on Close.
func NewPacketConn(sock *dgram.UDPSocket) *PacketConn {
	sock.SetBlocking(true)

	ctx, cancel := context.WithCancel(context.Background())
	return &PacketConn{
		sock:         sock,
		ctx:          ctx,
		cancel:       cancel,
		timeProvider: defaultTimeProvider,
	}
}

// ListenPacket opens a socket on stack, binds it to address ("" or ":0" for
// an ephemeral port on all interfaces) and wraps it in a PacketConn.
func ListenPacket(stack interfaces.INetworkStack, address string) (*PacketConn, error) {
	bind, err := parseListenAddr(address)
	if err != nil {
		return nil, newNetError("listen", address, err)
	}

	sock, err := dgram.Open(stack)
	if err != nil {
		return nil, newNetError("listen", address, err)
	}
	if err := sock.Bind(bind); err != nil {
		sock.Close()
		return nil, newNetError("listen", address, err)
	}

	conn := NewPacketConn(sock)

	logrus.WithFields(logrus.Fields{
		"local_addr": bind.String(),
		"stack":      stack.Name(),
		"component":  "PacketConn",
	}).Info("Created new packet connection")

	return conn, nil
}

func parseListenAddr(address string) (netip.AddrPort, error) {
	if address == "" {
		return netip.AddrPortFrom(netip.IPv4Unspecified(), 0), nil
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if host == "" {
		host = netip.IPv4Unspecified().String()
	}
	return netip.ParseAddrPort(net.JoinHostPort(host, port))
}

// Socket returns the wrapped socket.
func (c *PacketConn) Socket() *dgram.UDPSocket {
	return c.sock
}

// validateConnectionState checks if the connection is closed and returns an error if so.
func (c *PacketConn) validateConnectionState(op, addr string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return newNetError(op, addr, ErrConnectionClosed)
	}
	return nil
}

// callContext derives the context for one call from a deadline. It returns
// ErrTimeout without a context when the deadline has already passed.
func (c *PacketConn) callContext(deadline time.Time) (context.Context, context.CancelFunc, error) {
	if deadline.IsZero() {
		return c.ctx, func() {}, nil
	}
	c.mu.RLock()
	tp := c.timeProvider
	c.mu.RUnlock()
	if !getTimeProvider(tp).Now().Before(deadline) {
		return nil, nil, ErrTimeout
	}
	ctx, cancel := context.WithDeadline(c.ctx, deadline)
	return ctx, cancel, nil
}

// translate maps socket errors onto the errors callers of net.PacketConn expect.
func (c *PacketConn) translate(op, addr string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newNetError(op, addr, ErrTimeout)
	case errors.Is(err, context.Canceled), errors.Is(err, interfaces.ErrNoSocket):
		return newNetError(op, addr, ErrConnectionClosed)
	default:
		return newNetError(op, addr, err)
	}
}

// ReadFrom reads a packet from the connection and returns the data and source address.
// This implements net.PacketConn.ReadFrom().
func (c *PacketConn) ReadFrom(p []byte) (n int, addr net.Addr, err error) {
	if err := c.validateConnectionState("read", ""); err != nil {
		return 0, nil, err
	}

	c.deadlineMu.RLock()
	deadline := c.readDeadline
	c.deadlineMu.RUnlock()

	ctx, cancel, err := c.callContext(deadline)
	if err != nil {
		return 0, nil, newNetError("read", "", err)
	}
	defer cancel()

	n, from, err := c.sock.ReceiveFromContext(ctx, p)
	if err != nil {
		return 0, nil, c.translate("read", "", err)
	}
	return n, toUDPAddr(from), nil
}

// WriteTo writes a packet to the specified address.
// This implements net.PacketConn.WriteTo().
func (c *PacketConn) WriteTo(p []byte, addr net.Addr) (n int, err error) {
	addrStr := ""
	if addr != nil {
		addrStr = addr.String()
	}
	if err := c.validateConnectionState("write", addrStr); err != nil {
		return 0, err
	}

	dst, err := toAddrPort(addr)
	if err != nil {
		return 0, newNetError("write", addrStr, err)
	}

	c.deadlineMu.RLock()
	deadline := c.writeDeadline
	c.deadlineMu.RUnlock()

	ctx, cancel, err := c.callContext(deadline)
	if err != nil {
		return 0, newNetError("write", addrStr, err)
	}
	defer cancel()

	n, err = c.sock.SendToAddrContext(ctx, dst, p)
	if err != nil {
		return 0, c.translate("write", addrStr, err)
	}

	logrus.WithFields(logrus.Fields{
		"bytes_sent":  n,
		"remote_addr": addrStr,
		"component":   "PacketConn",
	}).Debug("Sent packet")

	return n, nil
}

// Close closes the packet connection and its socket. Blocked calls return
// ErrConnectionClosed.
// This implements net.PacketConn.Close().
func (c *PacketConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// Cancel context to stop all operations
	c.cancel()

	if err := c.sock.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"error":     err.Error(),
			"component": "PacketConn",
		}).Error("Error closing socket")
		return newNetError("close", "", err)
	}
	return nil
}

// LocalAddr returns the local network address, or nil if it is unknown.
// This implements net.PacketConn.LocalAddr().
func (c *PacketConn) LocalAddr() net.Addr {
	ap, err := c.sock.LocalAddr()
	if err != nil {
		return nil
	}
	return toUDPAddr(ap)
}

// SetDeadline sets both read and write deadlines.
// This implements net.PacketConn.SetDeadline().
func (c *PacketConn) SetDeadline(t time.Time) error {
	c.deadlineMu.Lock()
	c.readDeadline = t
	c.writeDeadline = t
	c.deadlineMu.Unlock()
	return nil
}

// SetReadDeadline sets the read deadline. A call already blocked keeps the
// deadline it started with.
// This implements net.PacketConn.SetReadDeadline().
func (c *PacketConn) SetReadDeadline(t time.Time) error {
	c.deadlineMu.Lock()
	c.readDeadline = t
	c.deadlineMu.Unlock()
	return nil
}

// SetWriteDeadline sets the write deadline. A call already blocked keeps the
// deadline it started with.
// This implements net.PacketConn.SetWriteDeadline().
func (c *PacketConn) SetWriteDeadline(t time.Time) error {
	c.deadlineMu.Lock()
	c.writeDeadline = t
	c.deadlineMu.Unlock()
	return nil
}

// SetTimeProvider sets the time provider for deadline checks.
// This is primarily useful for testing to inject deterministic time.
func (c *PacketConn) SetTimeProvider(tp TimeProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeProvider = tp
}

var _ net.PacketConn = (*PacketConn)(nil)
