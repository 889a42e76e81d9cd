//go:build !linux

package real

import (
	"context"
	"fmt"
	"net/netip"
	"runtime"

	"github.com/opd-ai/dgram/interfaces"
)

// Stack is only available on Linux.
type Stack struct{}

// New reports ErrUnsupported on this platform.
func New(config *interfaces.StackConfig) (*Stack, error) {
	return nil, fmt.Errorf("%w: operating system stack on %s", interfaces.ErrUnsupported, runtime.GOOS)
}

func (s *Stack) Name() string { return "real" }

func (s *Stack) SocketOpen(interfaces.Protocol) (interfaces.Handle, error) {
	return interfaces.InvalidHandle, interfaces.ErrUnsupported
}

func (s *Stack) SocketClose(interfaces.Handle) error { return interfaces.ErrUnsupported }

func (s *Stack) SocketBind(interfaces.Handle, netip.AddrPort) error {
	return interfaces.ErrUnsupported
}

func (s *Stack) SocketLocalAddr(interfaces.Handle) (netip.AddrPort, error) {
	return netip.AddrPort{}, interfaces.ErrUnsupported
}

func (s *Stack) SocketSendTo(interfaces.Handle, netip.AddrPort, []byte) (int, error) {
	return 0, interfaces.ErrUnsupported
}

func (s *Stack) SocketRecvFrom(interfaces.Handle, []byte) (int, netip.AddrPort, error) {
	return 0, netip.AddrPort{}, interfaces.ErrUnsupported
}

func (s *Stack) SocketAttach(interfaces.Handle, func()) {}

func (s *Stack) GetHostByName(context.Context, string) (netip.Addr, error) {
	return netip.Addr{}, interfaces.ErrUnsupported
}

func (s *Stack) Close() error { return nil }
