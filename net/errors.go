package net

import (
	"context"
	"errors"
	"fmt"

	"github.com/opd-ai/dgram/interfaces"
)

// Common errors for packet connections
var (
	// ErrConnectionClosed indicates the connection has been closed
	ErrConnectionClosed = errors.New("connection closed")

	// ErrTimeout indicates a deadline expired before the operation completed
	ErrTimeout = errors.New("i/o timeout")

	// ErrUnsupportedAddr indicates an address that cannot be converted to a UDP endpoint
	ErrUnsupportedAddr = errors.New("unsupported address")
)

// NetError represents an error with additional context. It implements
// net.Error so callers can detect deadline expiry with Timeout().
type NetError struct {
	Op   string // operation that caused the error
	Addr string // address if relevant
	Err  error  // underlying error
}

func (e *NetError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("dgram %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("dgram %s: %v", e.Op, e.Err)
}

func (e *NetError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the error was caused by an expired deadline.
func (e *NetError) Timeout() bool {
	return errors.Is(e.Err, ErrTimeout) ||
		errors.Is(e.Err, interfaces.ErrWouldBlock) ||
		errors.Is(e.Err, context.DeadlineExceeded)
}

// Temporary reports whether retrying the operation may succeed.
func (e *NetError) Temporary() bool {
	return e.Timeout()
}

// newNetError creates a new NetError
func newNetError(op, addr string, err error) *NetError {
	return &NetError{
		Op:   op,
		Addr: addr,
		Err:  err,
	}
}
