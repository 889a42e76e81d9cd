//go:build linux

package real

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/dgram"
	"github.com/opd-ai/dgram/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
)

func newStack(t *testing.T) *Stack {
	t.Helper()
	if !nettest.SupportsIPv4() {
		t.Skip("IPv4 is not available")
	}
	s, err := New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func openBound(t *testing.T, s *Stack, addr string) *dgram.UDPSocket {
	t.Helper()
	sock, err := dgram.Open(s)
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })
	require.NoError(t, sock.Bind(netip.MustParseAddrPort(addr)))
	return sock
}

func TestRecvWouldBlockOnEmptySocket(t *testing.T) {
	s := newStack(t)

	h, err := s.SocketOpen(interfaces.ProtocolUDP)
	require.NoError(t, err)
	defer s.SocketClose(h)
	require.NoError(t, s.SocketBind(h, netip.MustParseAddrPort("127.0.0.1:0")))

	_, _, err = s.SocketRecvFrom(h, make([]byte, 16))
	assert.ErrorIs(t, err, interfaces.ErrWouldBlock)
}

func TestLoopbackExchange(t *testing.T) {
	s := newStack(t)
	a := openBound(t, s, "127.0.0.1:0")
	b := openBound(t, s, "127.0.0.1:0")
	require.NoError(t, b.SetTimeout(2*time.Second))

	bAddr, err := b.LocalAddr()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), bAddr.Addr())
	assert.NotZero(t, bAddr.Port())

	n, err := a.SendToAddr(bAddr, []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	buf := make([]byte, 64)
	n, from, err := b.ReceiveFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	aAddr, err := a.LocalAddr()
	require.NoError(t, err)
	assert.Equal(t, aAddr, from)
}

func TestBlockedReceiveIsWokenByArrival(t *testing.T) {
	s := newStack(t)
	a := openBound(t, s, "127.0.0.1:0")
	b := openBound(t, s, "127.0.0.1:0")
	require.NoError(t, b.SetTimeout(2*time.Second))

	bAddr, err := b.LocalAddr()
	require.NoError(t, err)

	time.AfterFunc(50*time.Millisecond, func() {
		a.SendToAddr(bAddr, []byte("late"))
	})

	start := time.Now()
	buf := make([]byte, 64)
	n, _, err := b.ReceiveFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "late", string(buf[:n]))
	assert.Less(t, time.Since(start), time.Second)
}

func TestReceiveTimesOut(t *testing.T) {
	s := newStack(t)
	b := openBound(t, s, "127.0.0.1:0")
	require.NoError(t, b.SetTimeout(50*time.Millisecond))

	_, _, err := b.ReceiveFrom(make([]byte, 8))
	assert.ErrorIs(t, err, dgram.ErrWouldBlock)
}

func TestTruncatesLongDatagram(t *testing.T) {
	s := newStack(t)
	a := openBound(t, s, "127.0.0.1:0")
	b := openBound(t, s, "127.0.0.1:0")
	require.NoError(t, b.SetTimeout(2*time.Second))

	bAddr, err := b.LocalAddr()
	require.NoError(t, err)
	_, err = a.SendToAddr(bAddr, []byte("0123456789"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, _, err := b.ReceiveFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "0123", string(buf))
}

func TestIPv6Loopback(t *testing.T) {
	if !nettest.SupportsIPv6() {
		t.Skip("IPv6 is not available")
	}
	s := newStack(t)
	a := openBound(t, s, "[::1]:0")
	b := openBound(t, s, "[::1]:0")
	require.NoError(t, b.SetTimeout(2*time.Second))

	bAddr, err := b.LocalAddr()
	require.NoError(t, err)
	assert.Equal(t, netip.IPv6Loopback(), bAddr.Addr())

	_, err = a.SendToAddr(bAddr, []byte("six"))
	require.NoError(t, err)

	buf := make([]byte, 8)
	n, _, err := b.ReceiveFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "six", string(buf[:n]))
}

func TestOperationsOnUnknownHandle(t *testing.T) {
	s := newStack(t)

	_, err := s.SocketSendTo(42, netip.MustParseAddrPort("127.0.0.1:9"), []byte("x"))
	assert.ErrorIs(t, err, interfaces.ErrNoSocket)
	_, _, err = s.SocketRecvFrom(42, make([]byte, 1))
	assert.ErrorIs(t, err, interfaces.ErrNoSocket)
	assert.ErrorIs(t, s.SocketClose(42), interfaces.ErrNoSocket)
}

func TestClosedSocketNeverTouchesDescriptor(t *testing.T) {
	s := newStack(t)
	h, err := s.SocketOpen(interfaces.ProtocolUDP)
	require.NoError(t, err)

	s.mu.Lock()
	sock := s.sockets[h]
	s.mu.Unlock()
	require.NotNil(t, sock)

	require.NoError(t, s.Close())

	called := false
	err = sock.withFD(func(int) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, interfaces.ErrNoSocket)
	assert.False(t, called)
}

func TestStackCloseDuringTraffic(t *testing.T) {
	s := newStack(t)
	h, err := s.SocketOpen(interfaces.ProtocolUDP)
	require.NoError(t, err)
	require.NoError(t, s.SocketBind(h, netip.MustParseAddrPort("127.0.0.1:0")))
	self, err := s.SocketLocalAddr(h)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errCh := make(chan error, 64)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 16)
			for j := 0; j < 200; j++ {
				if _, err := s.SocketSendTo(h, self, []byte("x")); err != nil && !allowedAfterClose(err) {
					errCh <- err
					return
				}
				if _, _, err := s.SocketRecvFrom(h, buf); err != nil && !allowedAfterClose(err) {
					errCh <- err
					return
				}
			}
		}()
	}

	time.Sleep(time.Millisecond)
	require.NoError(t, s.Close())
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("unexpected error racing Close: %v", err)
	}
}

func allowedAfterClose(err error) bool {
	return errors.Is(err, interfaces.ErrNoSocket) || errors.Is(err, interfaces.ErrWouldBlock)
}

func TestOpenAfterClose(t *testing.T) {
	s := newStack(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.SocketOpen(interfaces.ProtocolUDP)
	assert.ErrorIs(t, err, interfaces.ErrStackClosed)
}

func TestGetHostByName(t *testing.T) {
	s, err := New(&interfaces.StackConfig{
		Kind:  interfaces.StackReal,
		Hosts: map[string]string{"Peer.Test.": "192.0.2.7"},
	})
	require.NoError(t, err)
	defer s.Close()

	addr, err := s.GetHostByName(context.Background(), "peer.test")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("192.0.2.7"), addr)

	addr, err = s.GetHostByName(context.Background(), "10.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("10.1.2.3"), addr)
}
