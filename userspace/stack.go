package userspace

import (
	"bytes"
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/dgram/interfaces"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"
	"gvisor.dev/gvisor/pkg/tcpip/link/loopback"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv6"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
	"gvisor.dev/gvisor/pkg/tcpip/transport/udp"
	"gvisor.dev/gvisor/pkg/waiter"
)

const nicid tcpip.NICID = 1

const defaultLocalAddress = "127.0.0.1"

// Stack implements interfaces.INetworkStack on an in-process gVisor
// netstack with a single loopback NIC. Datagrams never leave the process:
// only addresses assigned to the NIC are reachable.
type Stack struct {
	mu      sync.Mutex
	stack   *stack.Stack
	addr    netip.Addr
	proto   tcpip.NetworkProtocolNumber
	sockets map[interfaces.Handle]*endpoint
	hosts   map[string]netip.Addr
	next    interfaces.Handle
	closed  bool
}

type endpoint struct {
	ep       tcpip.Endpoint
	wq       *waiter.Queue
	entry    waiter.Entry
	callback atomic.Pointer[func()]
}

// New creates a netstack whose NIC owns config.LocalAddress (127.0.0.1 by
// default). The address family of the local address decides whether the
// stack speaks IPv4 or IPv6.
func New(config *interfaces.StackConfig) (*Stack, error) {
	if config == nil {
		config = &interfaces.StackConfig{Kind: interfaces.StackUserspace}
	}

	local := config.LocalAddress
	if local == "" {
		local = defaultLocalAddress
	}
	addr, err := netip.ParseAddr(local)
	if err != nil {
		return nil, errors.Wrapf(interfaces.ErrParameter, "local address %q", local)
	}
	addr = addr.Unmap()

	s := &Stack{
		addr:    addr,
		sockets: make(map[interfaces.Handle]*endpoint),
		hosts:   make(map[string]netip.Addr),
		next:    1,
	}

	var npf stack.NetworkProtocolFactory
	if addr.Is4() {
		s.proto = ipv4.ProtocolNumber
		npf = ipv4.NewProtocol
	} else {
		s.proto = ipv6.ProtocolNumber
		npf = ipv6.NewProtocol
	}
	s.stack = stack.New(stack.Options{
		NetworkProtocols:   []stack.NetworkProtocolFactory{npf},
		TransportProtocols: []stack.TransportProtocolFactory{udp.NewProtocol},
	})

	if terr := s.stack.CreateNIC(nicid, loopback.New()); terr != nil {
		s.stack.Destroy()
		return nil, errors.New(terr.String())
	}
	if terr := s.stack.AddProtocolAddress(nicid, tcpip.ProtocolAddress{
		Protocol:          s.proto,
		AddressWithPrefix: tcpip.AddrFromSlice(addr.AsSlice()).WithPrefix(),
	}, stack.AddressProperties{}); terr != nil {
		s.stack.Destroy()
		return nil, errors.New(terr.String())
	}
	s.stack.SetRouteTable([]tcpip.Route{
		{Destination: header.IPv4EmptySubnet, NIC: nicid},
		{Destination: header.IPv6EmptySubnet, NIC: nicid},
	})

	s.hosts["localhost"] = addr
	for name, value := range config.Hosts {
		if a, err := netip.ParseAddr(value); err == nil {
			s.hosts[normalizeHost(name)] = a
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":   "userspace.New",
		"local_addr": addr.String(),
	}).Info("Creating userspace network stack")

	return s, nil
}

// Name implements interfaces.INetworkStack.
func (s *Stack) Name() string {
	return "userspace"
}

// LocalAddr returns the address assigned to the stack's NIC.
func (s *Stack) LocalAddr() netip.Addr {
	return s.addr
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

	e := &endpoint{wq: &waiter.Queue{}}
	ep, terr := s.stack.NewEndpoint(udp.ProtocolNumber, s.proto, e.wq)
	if terr != nil {
		return interfaces.InvalidHandle, errors.New(terr.String())
	}
	e.ep = ep
	e.entry = waiter.NewFunctionEntry(waiter.ReadableEvents|waiter.WritableEvents, func(waiter.EventMask) {
		if cb := e.callback.Load(); cb != nil {
			(*cb)()
		}
	})
	e.wq.EventRegister(&e.entry)

	h := s.next
	s.next++
	s.sockets[h] = e

	logrus.WithFields(logrus.Fields{
		"function": "userspace.SocketOpen",
		"handle":   h,
	}).Debug("Opened userspace endpoint")

	return h, nil
}

func (s *Stack) endpoint(h interfaces.Handle) (*endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sockets[h]
	if !ok {
		return nil, interfaces.ErrNoSocket
	}
	return e, nil
}

// SocketClose implements interfaces.INetworkStack.
func (s *Stack) SocketClose(h interfaces.Handle) error {
	s.mu.Lock()
	e, ok := s.sockets[h]
	if !ok {
		s.mu.Unlock()
		return interfaces.ErrNoSocket
	}
	delete(s.sockets, h)
	s.mu.Unlock()

	e.release()
	return nil
}

func (e *endpoint) release() {
	e.callback.Store(nil)
	e.wq.EventUnregister(&e.entry)
	e.ep.Close()
}

// SocketBind implements interfaces.INetworkStack.
func (s *Stack) SocketBind(h interfaces.Handle, addr netip.AddrPort) error {
	e, err := s.endpoint(h)
	if err != nil {
		return err
	}

	full, err := s.fullAddress(addr)
	if err != nil {
		return err
	}
	if terr := e.ep.Bind(full); terr != nil {
		return errors.New(terr.String())
	}
	return nil
}

// SocketLocalAddr implements interfaces.INetworkStack.
func (s *Stack) SocketLocalAddr(h interfaces.Handle) (netip.AddrPort, error) {
	e, err := s.endpoint(h)
	if err != nil {
		return netip.AddrPort{}, err
	}

	full, terr := e.ep.GetLocalAddress()
	if terr != nil {
		return netip.AddrPort{}, errors.New(terr.String())
	}
	return s.fromFullAddress(full), nil
}

// SocketSendTo implements interfaces.INetworkStack.
func (s *Stack) SocketSendTo(h interfaces.Handle, addr netip.AddrPort, data []byte) (int, error) {
	e, err := s.endpoint(h)
	if err != nil {
		return 0, err
	}

	to, err := s.fullAddress(addr)
	if err != nil {
		return 0, err
	}

	n, terr := e.ep.Write(bytes.NewReader(data), tcpip.WriteOptions{To: &to})
	if terr != nil {
		return 0, convert(terr)
	}
	return int(n), nil
}

// SocketRecvFrom implements interfaces.INetworkStack.
func (s *Stack) SocketRecvFrom(h interfaces.Handle, buf []byte) (int, netip.AddrPort, error) {
	e, err := s.endpoint(h)
	if err != nil {
		return 0, netip.AddrPort{}, err
	}

	var b bytes.Buffer
	res, terr := e.ep.Read(&b, tcpip.ReadOptions{NeedRemoteAddr: true})
	if terr != nil {
		return 0, netip.AddrPort{}, convert(terr)
	}

	n := copy(buf, b.Bytes()[:res.Count])
	return n, s.fromFullAddress(res.RemoteAddr), nil
}

// SocketAttach implements interfaces.INetworkStack. Callbacks run on the
// goroutine that made the endpoint ready, which may be a sender on the
// same stack.
func (s *Stack) SocketAttach(h interfaces.Handle, callback func()) {
	e, err := s.endpoint(h)
	if err != nil {
		return
	}
	if callback == nil {
		e.callback.Store(nil)
		return
	}
	e.callback.Store(&callback)
}

// GetHostByName implements interfaces.INetworkStack. The stack has no
// resolver of its own: literal addresses, "localhost" and the configured
// hosts table are the only names it knows.
func (s *Stack) GetHostByName(ctx context.Context, host string) (netip.Addr, error) {
	if err := ctx.Err(); err != nil {
		return netip.Addr{}, err
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if addr, ok := s.hosts[normalizeHost(host)]; ok {
		return addr, nil
	}
	return netip.Addr{}, fmt.Errorf("%w: unknown host %q", interfaces.ErrDNSFailure, host)
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
	s.sockets = make(map[interfaces.Handle]*endpoint)
	s.mu.Unlock()

	for _, e := range sockets {
		e.release()
	}
	s.stack.Destroy()

	logrus.WithFields(logrus.Fields{
		"function": "userspace.Close",
		"sockets":  len(sockets),
	}).Info("Closed userspace network stack")
	return nil
}

func (s *Stack) fullAddress(addr netip.AddrPort) (tcpip.FullAddress, error) {
	full := tcpip.FullAddress{Port: addr.Port()}

	ip := addr.Addr().Unmap()
	if !ip.IsValid() || ip.IsUnspecified() {
		return full, nil
	}
	if ip.Is4() != s.addr.Is4() {
		return full, fmt.Errorf("%w: %v is not in the stack's address family", interfaces.ErrParameter, ip)
	}
	full.Addr = tcpip.AddrFromSlice(ip.AsSlice())
	return full, nil
}

func (s *Stack) fromFullAddress(full tcpip.FullAddress) netip.AddrPort {
	ip, ok := netip.AddrFromSlice(full.Addr.AsSlice())
	if !ok {
		if s.addr.Is4() {
			ip = netip.IPv4Unspecified()
		} else {
			ip = netip.IPv6Unspecified()
		}
	}
	return netip.AddrPortFrom(ip.Unmap(), full.Port)
}

// convert maps netstack errors onto the interfaces package's errors.
func convert(terr tcpip.Error) error {
	switch terr.(type) {
	case *tcpip.ErrWouldBlock:
		return interfaces.ErrWouldBlock
	case *tcpip.ErrClosedForSend, *tcpip.ErrClosedForReceive:
		return interfaces.ErrNoSocket
	default:
		return errors.New(terr.String())
	}
}

func normalizeHost(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}
