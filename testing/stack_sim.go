package testing

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/opd-ai/dgram/interfaces"
	"github.com/opd-ai/dgram/limits"
	"github.com/sirupsen/logrus"
)

const (
	// firstEphemeralPort is where automatic port assignment starts
	firstEphemeralPort = 49152

	defaultLocalAddress = "127.0.0.1"
)

// Op selects which primitive a fault injected with FailNext applies to.
type Op uint8

const (
	OpSend Op = iota + 1
	OpRecv
)

// SimulatedStack implements interfaces.INetworkStack entirely in memory.
// Datagrams sent to a bound address are queued on the receiving socket and
// its readiness callback fires after the stack's lock is released.
type SimulatedStack struct {
	mu          sync.Mutex
	config      *interfaces.StackConfig
	local       netip.Addr
	sockets     map[interfaces.Handle]*simSocket
	bound       map[netip.AddrPort]interfaces.Handle
	hosts       map[string]netip.Addr
	deliveryLog []DeliveryRecord
	nextHandle  interfaces.Handle
	nextPort    uint16
	closed      bool
}

type simSocket struct {
	handle       interfaces.Handle
	local        netip.AddrPort
	inbox        *queue.Queue
	depth        int
	callback     func()
	writeBlocked bool
	failSend     error
	failRecv     error
}

type datagram struct {
	data []byte
	from netip.AddrPort
}

// DeliveryRecord represents a datagram send event for testing verification
type DeliveryRecord struct {
	From      netip.AddrPort
	To        netip.AddrPort
	Size      int
	Timestamp int64
	Delivered bool
	Reason    string
}

// NewSimulatedStack creates a new in-memory stack. A nil config uses the
// defaults of the factory package's simulated configuration.
func NewSimulatedStack(config *interfaces.StackConfig) *SimulatedStack {
	if config == nil {
		config = &interfaces.StackConfig{
			Kind:       interfaces.StackSimulated,
			QueueDepth: limits.DefaultQueueDepth,
		}
	}

	local, err := netip.ParseAddr(config.LocalAddress)
	if err != nil {
		local = netip.MustParseAddr(defaultLocalAddress)
	}

	s := &SimulatedStack{
		config:     config,
		local:      local,
		sockets:    make(map[interfaces.Handle]*simSocket),
		bound:      make(map[netip.AddrPort]interfaces.Handle),
		hosts:      make(map[string]netip.Addr),
		nextHandle: 1,
		nextPort:   firstEphemeralPort,
	}
	s.hosts["localhost"] = local
	for name, value := range config.Hosts {
		if addr, err := netip.ParseAddr(value); err == nil {
			s.hosts[normalizeHost(name)] = addr
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewSimulatedStack",
		"local_addr":  local.String(),
		"queue_depth": limits.ClampQueueDepth(config.QueueDepth),
	}).Info("Creating simulated network stack")

	return s
}

// Name implements interfaces.INetworkStack.
func (s *SimulatedStack) Name() string {
	return "sim"
}

// SocketOpen implements interfaces.INetworkStack.
func (s *SimulatedStack) SocketOpen(proto interfaces.Protocol) (interfaces.Handle, error) {
	if proto != interfaces.ProtocolUDP {
		return interfaces.InvalidHandle, fmt.Errorf("%w: protocol %v", interfaces.ErrUnsupported, proto)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return interfaces.InvalidHandle, interfaces.ErrStackClosed
	}

	h := s.nextHandle
	s.nextHandle++
	s.sockets[h] = &simSocket{
		handle: h,
		inbox:  queue.New(),
		depth:  limits.ClampQueueDepth(s.config.QueueDepth),
	}

	logrus.WithFields(logrus.Fields{
		"function": "SimulatedStack.SocketOpen",
		"handle":   h,
	}).Debug("Opened simulated socket")

	return h, nil
}

// SocketClose implements interfaces.INetworkStack.
func (s *SimulatedStack) SocketClose(h interfaces.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sock, ok := s.sockets[h]
	if !ok {
		return interfaces.ErrNoSocket
	}
	if sock.local.IsValid() {
		delete(s.bound, sock.local)
	}
	delete(s.sockets, h)
	return nil
}

// SocketBind implements interfaces.INetworkStack.
func (s *SimulatedStack) SocketBind(h interfaces.Handle, addr netip.AddrPort) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sock, ok := s.sockets[h]
	if !ok {
		return interfaces.ErrNoSocket
	}
	if sock.local.IsValid() {
		return fmt.Errorf("%w: socket already bound to %v", interfaces.ErrParameter, sock.local)
	}

	ip := addr.Addr()
	if !ip.IsValid() {
		ip = netip.IPv4Unspecified()
	}
	port := addr.Port()
	if port == 0 {
		port = s.allocatePortLocked(ip)
	}
	local := netip.AddrPortFrom(ip, port)
	if _, taken := s.bound[local]; taken {
		return fmt.Errorf("address %v already in use", local)
	}

	sock.local = local
	s.bound[local] = h
	return nil
}

// SocketLocalAddr implements interfaces.INetworkStack.
func (s *SimulatedStack) SocketLocalAddr(h interfaces.Handle) (netip.AddrPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sock, ok := s.sockets[h]
	if !ok {
		return netip.AddrPort{}, interfaces.ErrNoSocket
	}
	return sock.local, nil
}

// SocketSendTo implements interfaces.INetworkStack.
func (s *SimulatedStack) SocketSendTo(h interfaces.Handle, addr netip.AddrPort, data []byte) (int, error) {
	s.mu.Lock()

	sock, ok := s.sockets[h]
	if !ok {
		s.mu.Unlock()
		return 0, interfaces.ErrNoSocket
	}
	if sock.failSend != nil {
		err := sock.failSend
		sock.failSend = nil
		s.mu.Unlock()
		return 0, err
	}
	if sock.writeBlocked {
		s.mu.Unlock()
		return 0, interfaces.ErrWouldBlock
	}
	if !sock.local.IsValid() {
		local := netip.AddrPortFrom(s.local, s.allocatePortLocked(s.local))
		sock.local = local
		s.bound[local] = h
	}

	from := sock.local
	if from.Addr().IsUnspecified() {
		from = netip.AddrPortFrom(s.local, from.Port())
	}

	record := DeliveryRecord{
		From:      from,
		To:        addr,
		Size:      len(data),
		Timestamp: time.Now().UnixNano(),
	}

	var notify func()
	dst := s.lookupLocked(addr)
	switch {
	case dst == nil:
		record.Reason = "no socket bound to destination"
	case dst.inbox.Length() >= dst.depth:
		record.Reason = "receive queue full"
		logrus.WithFields(logrus.Fields{
			"function":    "SimulatedStack.SocketSendTo",
			"remote_addr": addr.String(),
			"queue_depth": dst.depth,
		}).Warn("Dropped datagram due to full queue")
	default:
		payload := make([]byte, len(data))
		copy(payload, data)
		dst.inbox.Add(datagram{data: payload, from: from})
		record.Delivered = true
		notify = dst.callback
	}
	s.deliveryLog = append(s.deliveryLog, record)
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
	return len(data), nil
}

// SocketRecvFrom implements interfaces.INetworkStack.
func (s *SimulatedStack) SocketRecvFrom(h interfaces.Handle, buf []byte) (int, netip.AddrPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sock, ok := s.sockets[h]
	if !ok {
		return 0, netip.AddrPort{}, interfaces.ErrNoSocket
	}
	if sock.failRecv != nil {
		err := sock.failRecv
		sock.failRecv = nil
		return 0, netip.AddrPort{}, err
	}
	if sock.inbox.Length() == 0 {
		return 0, netip.AddrPort{}, interfaces.ErrWouldBlock
	}

	dg := sock.inbox.Remove().(datagram)
	n := copy(buf, dg.data)
	return n, dg.from, nil
}

// SocketAttach implements interfaces.INetworkStack.
func (s *SimulatedStack) SocketAttach(h interfaces.Handle, callback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sock, ok := s.sockets[h]; ok {
		sock.callback = callback
	}
}

// GetHostByName implements interfaces.INetworkStack. Literal addresses are
// parsed directly; names are looked up in the configured hosts table.
func (s *SimulatedStack) GetHostByName(ctx context.Context, host string) (netip.Addr, error) {
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
func (s *SimulatedStack) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.sockets = make(map[interfaces.Handle]*simSocket)
	s.bound = make(map[netip.AddrPort]interfaces.Handle)

	logrus.WithFields(logrus.Fields{
		"function":         "SimulatedStack.Close",
		"total_deliveries": len(s.deliveryLog),
	}).Info("Closed simulated network stack")
	return nil
}

// lookupLocked finds the socket receiving datagrams for addr, preferring an
// exact binding over a wildcard one.
func (s *SimulatedStack) lookupLocked(addr netip.AddrPort) *simSocket {
	if h, ok := s.bound[addr]; ok {
		return s.sockets[h]
	}
	for _, wildcard := range []netip.Addr{netip.IPv4Unspecified(), netip.IPv6Unspecified()} {
		if h, ok := s.bound[netip.AddrPortFrom(wildcard, addr.Port())]; ok {
			return s.sockets[h]
		}
	}
	return nil
}

func (s *SimulatedStack) allocatePortLocked(ip netip.Addr) uint16 {
	for {
		port := s.nextPort
		s.nextPort++
		if s.nextPort == 0 {
			s.nextPort = firstEphemeralPort
		}
		if _, taken := s.bound[netip.AddrPortFrom(ip, port)]; !taken {
			return port
		}
	}
}

func normalizeHost(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}
