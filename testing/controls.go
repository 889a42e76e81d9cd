package testing

import (
	"net/netip"
	"time"

	"github.com/opd-ai/dgram/interfaces"
	"github.com/sirupsen/logrus"
)

// Inject queues a datagram on socket h as if it had arrived from from, then
// fires the socket's readiness callback. The datagram is dropped if the
// socket's queue is full. Either outcome is added to the delivery log.
func (s *SimulatedStack) Inject(h interfaces.Handle, from netip.AddrPort, data []byte) error {
	s.mu.Lock()
	sock, ok := s.sockets[h]
	if !ok {
		s.mu.Unlock()
		return interfaces.ErrNoSocket
	}
	record := DeliveryRecord{
		From:      from,
		To:        sock.local,
		Size:      len(data),
		Timestamp: time.Now().UnixNano(),
	}
	if sock.inbox.Length() < sock.depth {
		payload := make([]byte, len(data))
		copy(payload, data)
		sock.inbox.Add(datagram{data: payload, from: from})
		record.Delivered = true
	} else {
		record.Reason = "receive queue full"
		logrus.WithFields(logrus.Fields{
			"function":    "SimulatedStack.Inject",
			"handle":      h,
			"remote_addr": from.String(),
			"queue_depth": sock.depth,
		}).Warn("Dropped injected datagram due to full queue")
	}
	s.deliveryLog = append(s.deliveryLog, record)
	callback := sock.callback
	s.mu.Unlock()

	if callback != nil {
		callback()
	}
	return nil
}

// SetWriteBlocked makes sends on socket h report ErrWouldBlock until it is
// unblocked again. Unblocking fires the socket's readiness callback.
func (s *SimulatedStack) SetWriteBlocked(h interfaces.Handle, blocked bool) error {
	s.mu.Lock()
	sock, ok := s.sockets[h]
	if !ok {
		s.mu.Unlock()
		return interfaces.ErrNoSocket
	}
	sock.writeBlocked = blocked
	callback := sock.callback
	s.mu.Unlock()

	if !blocked && callback != nil {
		callback()
	}
	return nil
}

// FailNext makes the next call of op on socket h return err.
func (s *SimulatedStack) FailNext(h interfaces.Handle, op Op, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sock, ok := s.sockets[h]
	if !ok {
		return interfaces.ErrNoSocket
	}
	switch op {
	case OpSend:
		sock.failSend = err
	case OpRecv:
		sock.failRecv = err
	}
	return nil
}

// Notify fires the readiness callback of socket h without changing its state.
func (s *SimulatedStack) Notify(h interfaces.Handle) {
	s.mu.Lock()
	var callback func()
	if sock, ok := s.sockets[h]; ok {
		callback = sock.callback
	}
	s.mu.Unlock()

	if callback != nil {
		callback()
	}
}

// Pending returns the number of datagrams queued on socket h.
func (s *SimulatedStack) Pending(h interfaces.Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sock, ok := s.sockets[h]; ok {
		return sock.inbox.Length()
	}
	return 0
}

// Handles returns the handles of all open sockets.
func (s *SimulatedStack) Handles() []interfaces.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles := make([]interfaces.Handle, 0, len(s.sockets))
	for h := range s.sockets {
		handles = append(handles, h)
	}
	return handles
}

// SetHost adds or replaces an entry in the stack's hosts table.
func (s *SimulatedStack) SetHost(name string, addr netip.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts[normalizeHost(name)] = addr
}

// GetDeliveryLog returns a copy of the delivery log for test verification
func (s *SimulatedStack) GetDeliveryLog() []DeliveryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	logCopy := make([]DeliveryRecord, len(s.deliveryLog))
	copy(logCopy, s.deliveryLog)
	return logCopy
}

// ClearDeliveryLog clears the delivery log (useful for test setup)
func (s *SimulatedStack) ClearDeliveryLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveryLog = s.deliveryLog[:0]
}
