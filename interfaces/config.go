package interfaces

import (
	"errors"
	"fmt"
	"time"
)

// StackKind names a network stack implementation.
type StackKind string

const (
	// StackSimulated is the in-memory stack from the testing package
	StackSimulated StackKind = "sim"
	// StackReal uses operating-system UDP sockets
	StackReal StackKind = "real"
	// StackUserspace runs an in-process gVisor netstack
	StackUserspace StackKind = "userspace"
)

// ForeverTimeout is the distinguished timeout value meaning "block until
// the operation completes or the caller cancels".
const ForeverTimeout time.Duration = -1

var (
	// ErrInvalidTimeout indicates a negative timeout other than ForeverTimeout
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidQueueDepth indicates a non-positive receive queue depth
	ErrInvalidQueueDepth = errors.New("invalid queue depth")

	// ErrUnknownStack indicates an unrecognized StackKind
	ErrUnknownStack = errors.New("unknown stack kind")
)

// StackConfig holds configuration for network stack implementations
type StackConfig struct {
	// Kind selects the stack implementation
	Kind StackKind

	// BindAddress is the local address sockets bind to ("" leaves them unbound)
	BindAddress string

	// LocalAddress is the interface address of stacks that own one (userspace)
	LocalAddress string

	// Timeout is the default per-operation socket timeout
	Timeout time.Duration

	// QueueDepth bounds the number of datagrams queued per socket
	QueueDepth int

	// Hosts maps host names to addresses for stacks without a system resolver
	Hosts map[string]string
}

// Validate checks the configuration for values no stack can honor.
func (c *StackConfig) Validate() error {
	switch c.Kind {
	case StackSimulated, StackReal, StackUserspace:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStack, c.Kind)
	}
	if c.Timeout < 0 && c.Timeout != ForeverTimeout {
		return fmt.Errorf("%w: %v", ErrInvalidTimeout, c.Timeout)
	}
	if c.QueueDepth <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQueueDepth, c.QueueDepth)
	}
	return nil
}
