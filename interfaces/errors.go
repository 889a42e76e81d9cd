package interfaces

import (
	"errors"
	"fmt"
)

// Common errors for network stacks and sockets
var (
	// ErrWouldBlock indicates no progress is possible right now; retry later
	ErrWouldBlock = errors.New("operation would block")

	// ErrNoSocket indicates the socket is not open or has been closed
	ErrNoSocket = errors.New("socket not available")

	// ErrDNSFailure indicates a host name could not be resolved
	ErrDNSFailure = errors.New("DNS failure")

	// ErrParameter indicates an invalid argument was passed to the stack
	ErrParameter = errors.New("invalid parameter")

	// ErrUnsupported indicates the stack or platform cannot perform the operation
	ErrUnsupported = errors.New("unsupported")

	// ErrStackClosed indicates the stack has been shut down
	ErrStackClosed = errors.New("stack closed")
)

// SocketError represents an error with additional context
type SocketError struct {
	Op   string // operation that caused the error
	Addr string // address if relevant
	Err  error  // underlying error
}

func (e *SocketError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("socket %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("socket %s: %v", e.Op, e.Err)
}

func (e *SocketError) Unwrap() error {
	return e.Err
}

// NewSocketError creates a new SocketError
func NewSocketError(op, addr string, err error) *SocketError {
	return &SocketError{
		Op:   op,
		Addr: addr,
		Err:  err,
	}
}

// IsWouldBlock reports whether err is, or wraps, ErrWouldBlock.
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}
