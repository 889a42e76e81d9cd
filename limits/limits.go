// Package limits provides centralized datagram size limits for UDP sockets.
// This ensures consistent validation across the socket core and every stack.
package limits

import (
	"errors"
	"fmt"
	"net/netip"
)

const (
	// MaxUDPPayload is the largest UDP payload carried by IPv4
	// (65535 - 20 byte IPv4 header - 8 byte UDP header)
	MaxUDPPayload = 65507

	// MaxIPv6UDPPayload is the largest UDP payload carried by IPv6 without
	// jumbograms (65535 - 8 byte UDP header; the IPv6 header is not counted)
	MaxIPv6UDPPayload = 65527

	// MaxReceiveBuffer is the buffer size that never truncates a datagram
	MaxReceiveBuffer = 65536

	// DefaultQueueDepth is the default number of datagrams queued per socket
	DefaultQueueDepth = 64

	// MaxQueueDepth bounds per-socket queues to prevent memory exhaustion
	MaxQueueDepth = 4096
)

var (
	// ErrDatagramTooLarge indicates a datagram exceeds the payload limit for its address family
	ErrDatagramTooLarge = errors.New("datagram too large")

	// ErrInvalidAddress indicates a destination that cannot carry a datagram
	ErrInvalidAddress = errors.New("invalid destination address")
)

// MaxPayloadFor returns the payload limit for datagrams sent to addr.
// IPv4-mapped IPv6 addresses use the IPv4 limit.
func MaxPayloadFor(addr netip.Addr) int {
	if addr.Is4() || addr.Is4In6() {
		return MaxUDPPayload
	}
	return MaxIPv6UDPPayload
}

// ValidateDatagramSize validates a datagram against the specified maximum size.
// Empty datagrams are legal for UDP.
func ValidateDatagramSize(data []byte, maxSize int) error {
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrDatagramTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateDatagram validates a datagram and its destination before sending.
// Returns an error with context if the destination is unusable or the
// datagram exceeds the limit for the destination's address family.
func ValidateDatagram(data []byte, dst netip.AddrPort) error {
	if !dst.IsValid() || dst.Port() == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, dst)
	}
	return ValidateDatagramSize(data, MaxPayloadFor(dst.Addr()))
}

// ClampQueueDepth returns depth bounded to [1, MaxQueueDepth], using
// DefaultQueueDepth for non-positive values.
func ClampQueueDepth(depth int) int {
	if depth <= 0 {
		return DefaultQueueDepth
	}
	if depth > MaxQueueDepth {
		return MaxQueueDepth
	}
	return depth
}
