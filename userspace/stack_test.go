package userspace

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/opd-ai/dgram"
	"github.com/opd-ai/dgram/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStack(t *testing.T, config *interfaces.StackConfig) *Stack {
	t.Helper()
	s, err := New(config)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func openBound(t *testing.T, s *Stack, port uint16) *dgram.UDPSocket {
	t.Helper()
	sock, err := dgram.Open(s)
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })
	require.NoError(t, sock.Bind(netip.AddrPortFrom(s.LocalAddr(), port)))
	return sock
}

func TestNewRejectsBadLocalAddress(t *testing.T) {
	_, err := New(&interfaces.StackConfig{LocalAddress: "nope"})
	assert.ErrorIs(t, err, interfaces.ErrParameter)
}

func TestRecvWouldBlock(t *testing.T) {
	s := newStack(t, nil)

	h, err := s.SocketOpen(interfaces.ProtocolUDP)
	require.NoError(t, err)
	defer s.SocketClose(h)
	require.NoError(t, s.SocketBind(h, netip.MustParseAddrPort("127.0.0.1:4000")))

	_, _, err = s.SocketRecvFrom(h, make([]byte, 8))
	assert.ErrorIs(t, err, interfaces.ErrWouldBlock)
}

func TestExchange(t *testing.T) {
	s := newStack(t, nil)
	a := openBound(t, s, 4001)
	b := openBound(t, s, 4002)
	require.NoError(t, b.SetTimeout(2*time.Second))

	n, err := a.SendTo("localhost", 4002, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 64)
	n, from, err := b.ReceiveFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:4001"), from)
}

func TestBlockedReceiveWokenByWaiterQueue(t *testing.T) {
	s := newStack(t, nil)
	a := openBound(t, s, 4003)
	b := openBound(t, s, 4004)
	require.NoError(t, b.SetTimeout(2*time.Second))

	dst, err := b.LocalAddr()
	require.NoError(t, err)
	time.AfterFunc(30*time.Millisecond, func() {
		a.SendToAddr(dst, []byte("late"))
	})

	start := time.Now()
	buf := make([]byte, 64)
	n, _, err := b.ReceiveFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "late", string(buf[:n]))
	assert.Less(t, time.Since(start), time.Second)
	assert.NotZero(t, b.Stats().Events)
}

func TestTruncation(t *testing.T) {
	s := newStack(t, nil)
	a := openBound(t, s, 4005)
	b := openBound(t, s, 4006)
	require.NoError(t, b.SetTimeout(2*time.Second))

	dst, err := b.LocalAddr()
	require.NoError(t, err)
	_, err = a.SendToAddr(dst, []byte("0123456789"))
	require.NoError(t, err)

	buf := make([]byte, 3)
	n, _, err := b.ReceiveFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "012", string(buf))
}

func TestEphemeralBind(t *testing.T) {
	s := newStack(t, nil)
	sock := openBound(t, s, 0)

	addr, err := sock.LocalAddr()
	require.NoError(t, err)
	assert.NotZero(t, addr.Port())
}

func TestIPv6StackRejectsIPv4Destinations(t *testing.T) {
	s := newStack(t, &interfaces.StackConfig{LocalAddress: "fd00::1"})
	assert.Equal(t, netip.MustParseAddr("fd00::1"), s.LocalAddr())

	sock, err := dgram.Open(s)
	require.NoError(t, err)
	defer sock.Close()
	require.NoError(t, sock.SetTimeout(dgram.NonBlocking))

	_, err = sock.SendToAddr(netip.MustParseAddrPort("127.0.0.1:5002"), []byte("x"))
	assert.ErrorIs(t, err, interfaces.ErrParameter)
}

func TestGetHostByName(t *testing.T) {
	s := newStack(t, &interfaces.StackConfig{Hosts: map[string]string{"peer.test": "127.0.0.1"}})

	addr, err := s.GetHostByName(context.Background(), "PEER.test.")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), addr)

	_, err = s.GetHostByName(context.Background(), "unknown.test")
	assert.ErrorIs(t, err, interfaces.ErrDNSFailure)
}

func TestClosedStack(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	h, err := s.SocketOpen(interfaces.ProtocolUDP)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.SocketOpen(interfaces.ProtocolUDP)
	assert.ErrorIs(t, err, interfaces.ErrStackClosed)
	assert.ErrorIs(t, s.SocketClose(h), interfaces.ErrNoSocket)
}
