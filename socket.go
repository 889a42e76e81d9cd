package dgram

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/dgram/interfaces"
	"github.com/opd-ai/dgram/limits"
	"github.com/sirupsen/logrus"
)

const (
	// NonBlocking makes every operation a single attempt that never waits.
	NonBlocking time.Duration = 0

	// Forever makes operations wait until they complete, the socket is
	// closed, or the caller's context is done.
	Forever = interfaces.ForeverTimeout
)

// UDPSocket is a blocking, timeout-bounded datagram socket driven by a
// non-blocking network stack.
//
// At most one send and one receive are in flight at any time; concurrent
// callers of the same direction are serialized, while a send and a receive
// proceed independently. The stack reports readiness changes through
// OnSocketEvent, which wakes blocked callers.
type UDPSocket struct {
	// mu is the internal state lock. It guards stack, handle, generation and
	// timeout and is held around every stack call, never across a wait.
	mu      sync.Mutex
	stack   interfaces.INetworkStack
	handle  interfaces.Handle
	timeout time.Duration
	// generation counts closes. A caller that waited across a close sees
	// it changed and fails even if the socket was reopened meanwhile.
	generation uint64

	send *direction
	recv *direction

	observer atomic.Pointer[func()]
	stats    socketStats

	logger *logrus.Entry
}

// NewUDPSocket creates an unopened socket. Operations return ErrNoSocket
// until Open succeeds. The initial timeout is Forever.
func NewUDPSocket() *UDPSocket {
	return &UDPSocket{
		handle:  interfaces.InvalidHandle,
		timeout: Forever,
		send:    newDirection("sendto"),
		recv:    newDirection("recvfrom"),
		logger:  logrus.WithField("component", "UDPSocket"),
	}
}

// Open creates a socket and opens it on stack.
func Open(stack interfaces.INetworkStack) (*UDPSocket, error) {
	s := NewUDPSocket()
	if err := s.Open(stack); err != nil {
		return nil, err
	}
	return s, nil
}

// Open opens the socket on stack and registers OnSocketEvent as the
// stack's readiness callback for it.
func (s *UDPSocket) Open(stack interfaces.INetworkStack) error {
	if stack == nil {
		return interfaces.NewSocketError("open", "", ErrParameter)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != interfaces.InvalidHandle {
		return interfaces.NewSocketError("open", "", ErrAlreadyOpen)
	}

	h, err := stack.SocketOpen(interfaces.ProtocolUDP)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"function": "Open",
			"stack":    stack.Name(),
			"error":    err.Error(),
		}).Warn("Failed to open socket")
		return err
	}

	s.stack = stack
	s.handle = h
	stack.SocketAttach(h, s.OnSocketEvent)

	s.logger.WithFields(logrus.Fields{
		"function": "Open",
		"stack":    stack.Name(),
		"handle":   h,
	}).Info("Opened UDP socket")

	return nil
}

// Close closes the socket. Blocked callers are woken and return
// ErrNoSocket. Closing an unopened socket is a no-op.
func (s *UDPSocket) Close() error {
	s.mu.Lock()
	if s.handle == interfaces.InvalidHandle {
		s.mu.Unlock()
		return nil
	}

	h := s.handle
	stack := s.stack
	s.handle = interfaces.InvalidHandle
	s.generation++
	stack.SocketAttach(h, nil)
	err := stack.SocketClose(h)
	s.mu.Unlock()

	s.send.ready.Signal()
	s.recv.ready.Signal()

	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"function": "Close",
			"handle":   h,
			"error":    err.Error(),
		}).Error("Error closing socket")
		return interfaces.NewSocketError("close", "", err)
	}

	s.logger.WithFields(logrus.Fields{
		"function": "Close",
		"handle":   h,
	}).Info("Closed UDP socket")

	return nil
}

// IsOpen reports whether the socket currently holds a live handle.
func (s *UDPSocket) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != interfaces.InvalidHandle
}

// Stack returns the stack the socket was last opened on, or nil.
func (s *UDPSocket) Stack() interfaces.INetworkStack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack
}

// Bind binds the socket to a local address.
func (s *UDPSocket) Bind(addr netip.AddrPort) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == interfaces.InvalidHandle {
		return interfaces.NewSocketError("bind", addr.String(), ErrNoSocket)
	}
	if err := s.stack.SocketBind(s.handle, addr); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"function": "Bind",
		"handle":   s.handle,
		"addr":     addr.String(),
	}).Debug("Bound UDP socket")
	return nil
}

// LocalAddr returns the address the socket is bound to.
func (s *UDPSocket) LocalAddr() (netip.AddrPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == interfaces.InvalidHandle {
		return netip.AddrPort{}, interfaces.NewSocketError("getsockname", "", ErrNoSocket)
	}
	return s.stack.SocketLocalAddr(s.handle)
}

// SetTimeout sets the timeout applied to each subsequent send and receive.
// NonBlocking (0) polls once; a positive duration bounds the total time a
// call may block, measured from the call's entry; Forever never times out.
// Any other negative duration is rejected with ErrInvalidTimeout.
func (s *UDPSocket) SetTimeout(d time.Duration) error {
	if d < 0 && d != Forever {
		return fmt.Errorf("%w: %v", ErrInvalidTimeout, d)
	}
	s.mu.Lock()
	s.timeout = d
	s.mu.Unlock()
	return nil
}

// Timeout returns the current operation timeout.
func (s *UDPSocket) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

// SetBlocking is shorthand for SetTimeout(Forever) or SetTimeout(NonBlocking).
func (s *UDPSocket) SetBlocking(blocking bool) {
	d := NonBlocking
	if blocking {
		d = Forever
	}
	s.mu.Lock()
	s.timeout = d
	s.mu.Unlock()
}

// Attach registers a function called after every readiness event, from the
// context the stack delivers events in. It must not block. A nil function
// detaches the current one.
func (s *UDPSocket) Attach(fn func()) {
	if fn == nil {
		s.observer.Store(nil)
		return
	}
	s.observer.Store(&fn)
}

// SendTo resolves host through the socket's stack and sends data to it.
func (s *UDPSocket) SendTo(host string, port uint16, data []byte) (int, error) {
	return s.SendToContext(context.Background(), host, port, data)
}

// SendToContext is SendTo with a context bounding resolution and waiting.
func (s *UDPSocket) SendToContext(ctx context.Context, host string, port uint16, data []byte) (int, error) {
	stack := s.Stack()
	if stack == nil {
		return 0, interfaces.NewSocketError("sendto", host, ErrNoSocket)
	}

	addr, err := stack.GetHostByName(ctx, host)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, interfaces.NewSocketError("sendto", host, ctxErr)
		}
		if !errors.Is(err, ErrDNSFailure) {
			err = fmt.Errorf("%w: %w", ErrDNSFailure, err)
		}
		s.logger.WithFields(logrus.Fields{
			"function": "SendTo",
			"host":     host,
			"error":    err.Error(),
		}).Debug("Host resolution failed")
		return 0, interfaces.NewSocketError("sendto", host, err)
	}

	return s.SendToAddrContext(ctx, netip.AddrPortFrom(addr, port), data)
}

// SendToAddr sends one datagram to addr, blocking according to the
// socket's timeout. It returns the number of bytes sent.
func (s *UDPSocket) SendToAddr(addr netip.AddrPort, data []byte) (int, error) {
	return s.SendToAddrContext(context.Background(), addr, data)
}

// SendToAddrContext is SendToAddr with a context that can end the wait early.
func (s *UDPSocket) SendToAddrContext(ctx context.Context, addr netip.AddrPort, data []byte) (int, error) {
	if err := limits.ValidateDatagram(data, addr); err != nil {
		return 0, interfaces.NewSocketError("sendto", addr.String(), err)
	}

	return s.run(ctx, s.send, addr.String(), func(stack interfaces.INetworkStack, h interfaces.Handle) (int, error) {
		return stack.SocketSendTo(h, addr, data)
	})
}

// ReceiveFrom receives one datagram into buf, blocking according to the
// socket's timeout. Datagrams larger than buf are truncated.
func (s *UDPSocket) ReceiveFrom(buf []byte) (int, netip.AddrPort, error) {
	return s.ReceiveFromContext(context.Background(), buf)
}

// ReceiveFromContext is ReceiveFrom with a context that can end the wait early.
func (s *UDPSocket) ReceiveFromContext(ctx context.Context, buf []byte) (int, netip.AddrPort, error) {
	var from netip.AddrPort
	n, err := s.run(ctx, s.recv, "", func(stack interfaces.INetworkStack, h interfaces.Handle) (int, error) {
		n, addr, err := stack.SocketRecvFrom(h, buf)
		from = addr
		return n, err
	})
	if err != nil {
		return 0, netip.AddrPort{}, err
	}
	return n, from, nil
}
