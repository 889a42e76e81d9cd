package dgram

import (
	"errors"

	"github.com/opd-ai/dgram/interfaces"
)

// Errors returned by socket operations. They are the sentinels of the
// interfaces package, re-exported so callers need a single import.
var (
	// ErrWouldBlock indicates the timeout elapsed before the operation could progress
	ErrWouldBlock = interfaces.ErrWouldBlock

	// ErrNoSocket indicates the socket is not open or has been closed
	ErrNoSocket = interfaces.ErrNoSocket

	// ErrDNSFailure indicates the destination host name could not be resolved
	ErrDNSFailure = interfaces.ErrDNSFailure

	// ErrParameter indicates an invalid argument
	ErrParameter = interfaces.ErrParameter

	// ErrInvalidTimeout indicates a negative timeout other than Forever
	ErrInvalidTimeout = interfaces.ErrInvalidTimeout

	// ErrAlreadyOpen indicates Open was called on an open socket
	ErrAlreadyOpen = errors.New("socket already open")
)

// SocketError is the error type returned for failures detected by the
// socket itself. Transport errors reported by the stack are returned as is.
type SocketError = interfaces.SocketError
