//go:build linux

package real

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"sync"

	"github.com/opd-ai/dgram/interfaces"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Stack implements interfaces.INetworkStack with non-blocking operating
// system UDP sockets. Sockets are dual-stack IPv6 where the kernel allows it
// and IPv4 otherwise. Readiness is reported from a single epoll goroutine.
type Stack struct {
	mu         sync.Mutex
	config     *interfaces.StackConfig
	sockets    map[interfaces.Handle]*osSocket
	byFD       map[int32]*osSocket
	nextHandle interfaces.Handle
	poller     *poller
	resolver   *resolver
	closed     bool
}

type osSocket struct {
	handle   interfaces.Handle
	fd       int
	family   int
	callback func()

	// mu is read-held across every syscall on fd and write-held by close,
	// so the descriptor number is never used after it may have been reused.
	mu     sync.RWMutex
	closed bool
}

// withFD runs fn on the socket's descriptor unless the socket was closed.
func (o *osSocket) withFD(fn func(fd int) error) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return interfaces.ErrNoSocket
	}
	return fn(o.fd)
}

// New creates a stack backed by the operating system. A nil config uses
// the defaults.
func New(config *interfaces.StackConfig) (*Stack, error) {
	if config == nil {
		config = &interfaces.StackConfig{Kind: interfaces.StackReal}
	}

	s := &Stack{
		config:     config,
		sockets:    make(map[interfaces.Handle]*osSocket),
		byFD:       make(map[int32]*osSocket),
		nextHandle: 1,
		resolver:   newResolver(config.Hosts),
	}

	p, err := newPoller(s.dispatch)
	if err != nil {
		return nil, err
	}
	s.poller = p

	logrus.WithFields(logrus.Fields{
		"function": "real.New",
		"hosts":    len(config.Hosts),
	}).Info("Creating operating system network stack")

	return s, nil
}

// Name implements interfaces.INetworkStack.
func (s *Stack) Name() string {
	return "real"
}

// dispatch runs on the poller goroutine.
func (s *Stack) dispatch(fd int32) {
	s.mu.Lock()
	var callback func()
	if sock, ok := s.byFD[fd]; ok {
		callback = sock.callback
	}
	s.mu.Unlock()

	if callback != nil {
		callback()
	}
}

// SocketOpen implements interfaces.INetworkStack.
func (s *Stack) SocketOpen(proto interfaces.Protocol) (interfaces.Handle, error) {
	if proto != interfaces.ProtocolUDP {
		return interfaces.InvalidHandle, fmt.Errorf("%w: protocol %v", interfaces.ErrUnsupported, proto)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return interfaces.InvalidHandle, interfaces.ErrStackClosed
	}

	fd, family, err := openSocket()
	if err != nil {
		return interfaces.InvalidHandle, err
	}
	if err := s.poller.register(fd); err != nil {
		unix.Close(fd)
		return interfaces.InvalidHandle, err
	}

	h := s.nextHandle
	s.nextHandle++
	sock := &osSocket{handle: h, fd: fd, family: family}
	s.sockets[h] = sock
	s.byFD[int32(fd)] = sock

	logrus.WithFields(logrus.Fields{
		"function": "real.SocketOpen",
		"handle":   h,
		"fd":       fd,
		"ipv6":     family == unix.AF_INET6,
	}).Debug("Opened operating system socket")

	return h, nil
}

// openSocket creates a non-blocking dual-stack socket, falling back to IPv4
// on kernels without IPv6.
func openSocket() (fd, family int, err error) {
	const flags = unix.SOCK_DGRAM | unix.SOCK_NONBLOCK | unix.SOCK_CLOEXEC

	fd, err = unix.Socket(unix.AF_INET6, flags, unix.IPPROTO_UDP)
	if err == nil {
		if err = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err == nil {
			return fd, unix.AF_INET6, nil
		}
		unix.Close(fd)
	}

	fd, err = unix.Socket(unix.AF_INET, flags, unix.IPPROTO_UDP)
	if err != nil {
		return -1, 0, os.NewSyscallError("socket", err)
	}
	return fd, unix.AF_INET, nil
}

func (s *Stack) socket(h interfaces.Handle) (*osSocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sock, ok := s.sockets[h]
	if !ok {
		return nil, interfaces.ErrNoSocket
	}
	return sock, nil
}

// SocketClose implements interfaces.INetworkStack.
func (s *Stack) SocketClose(h interfaces.Handle) error {
	s.mu.Lock()
	sock, ok := s.sockets[h]
	if !ok {
		s.mu.Unlock()
		return interfaces.ErrNoSocket
	}
	delete(s.sockets, h)
	delete(s.byFD, int32(sock.fd))
	s.mu.Unlock()

	return s.closeSocket(sock)
}

func (s *Stack) closeSocket(sock *osSocket) error {
	sock.mu.Lock()
	defer sock.mu.Unlock()
	if sock.closed {
		return nil
	}
	sock.closed = true

	if err := s.poller.unregister(sock.fd); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "real.SocketClose",
			"handle":   sock.handle,
			"error":    err.Error(),
		}).Warn("Failed to remove socket from poller")
	}
	if err := unix.Close(sock.fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}

// SocketBind implements interfaces.INetworkStack.
func (s *Stack) SocketBind(h interfaces.Handle, addr netip.AddrPort) error {
	sock, err := s.socket(h)
	if err != nil {
		return err
	}

	sa, err := toSockaddr(sock.family, addr)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrParameter, err)
	}
	return sock.withFD(func(fd int) error {
		if err := unix.Bind(fd, sa); err != nil {
			return os.NewSyscallError("bind", err)
		}
		return nil
	})
}

// SocketLocalAddr implements interfaces.INetworkStack.
func (s *Stack) SocketLocalAddr(h interfaces.Handle) (netip.AddrPort, error) {
	sock, err := s.socket(h)
	if err != nil {
		return netip.AddrPort{}, err
	}

	var local netip.AddrPort
	err = sock.withFD(func(fd int) error {
		sa, err := unix.Getsockname(fd)
		if err != nil {
			return os.NewSyscallError("getsockname", err)
		}
		local = fromSockaddr(sa)
		return nil
	})
	return local, err
}

// SocketSendTo implements interfaces.INetworkStack.
func (s *Stack) SocketSendTo(h interfaces.Handle, addr netip.AddrPort, data []byte) (int, error) {
	sock, err := s.socket(h)
	if err != nil {
		return 0, err
	}

	sa, err := toSockaddr(sock.family, addr)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", interfaces.ErrParameter, err)
	}
	err = sock.withFD(func(fd int) error {
		if err := unix.Sendto(fd, data, 0, sa); err != nil {
			return translateErrno("sendto", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// SocketRecvFrom implements interfaces.INetworkStack.
func (s *Stack) SocketRecvFrom(h interfaces.Handle, buf []byte) (int, netip.AddrPort, error) {
	sock, err := s.socket(h)
	if err != nil {
		return 0, netip.AddrPort{}, err
	}

	var (
		n    int
		from unix.Sockaddr
	)
	err = sock.withFD(func(fd int) error {
		var rerr error
		n, from, rerr = unix.Recvfrom(fd, buf, 0)
		if rerr != nil {
			return translateErrno("recvfrom", rerr)
		}
		return nil
	})
	if err != nil {
		return 0, netip.AddrPort{}, err
	}
	return n, fromSockaddr(from), nil
}

// translateErrno maps the kernel's "try again" results onto ErrWouldBlock.
func translateErrno(op string, err error) error {
	if errors.Is(err, unix.EAGAIN) {
		return interfaces.ErrWouldBlock
	}
	return os.NewSyscallError(op, err)
}

// SocketAttach implements interfaces.INetworkStack.
func (s *Stack) SocketAttach(h interfaces.Handle, callback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sock, ok := s.sockets[h]; ok {
		sock.callback = callback
	}
}

// GetHostByName implements interfaces.INetworkStack. Names in the
// configured hosts table take precedence over the system resolver.
func (s *Stack) GetHostByName(ctx context.Context, host string) (netip.Addr, error) {
	return s.resolver.resolve(ctx, host)
}

// Close implements interfaces.INetworkStack.
func (s *Stack) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sockets := s.sockets
	s.sockets = make(map[interfaces.Handle]*osSocket)
	s.byFD = make(map[int32]*osSocket)
	s.mu.Unlock()

	for _, sock := range sockets {
		s.closeSocket(sock)
	}

	logrus.WithFields(logrus.Fields{
		"function": "real.Close",
		"sockets":  len(sockets),
	}).Info("Closed operating system network stack")

	return s.poller.close()
}
