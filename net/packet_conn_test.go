package net

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	simstack "github.com/opd-ai/dgram/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenPair(t *testing.T) (*PacketConn, *PacketConn) {
	t.Helper()
	stack := simstack.NewSimulatedStack(nil)
	t.Cleanup(func() { stack.Close() })

	a, err := ListenPacket(stack, "127.0.0.1:7001")
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	b, err := ListenPacket(stack, "127.0.0.1:7002")
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	return a, b
}

func TestPacketConnExchange(t *testing.T) {
	a, b := listenPair(t)

	n, err := a.WriteTo([]byte("hello"), b.LocalAddr())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 64)
	require.NoError(t, b.SetReadDeadline(time.Now().Add(time.Second)))
	n, from, err := b.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	assert.Equal(t, a.LocalAddr().String(), from.String())
}

func TestPacketConnLocalAddr(t *testing.T) {
	a, _ := listenPair(t)

	addr, ok := a.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)
	assert.Equal(t, 7001, addr.Port)
	assert.Equal(t, "udp", addr.Network())
}

func TestPacketConnReadDeadlineExpires(t *testing.T) {
	_, b := listenPair(t)

	require.NoError(t, b.SetReadDeadline(time.Now().Add(50*time.Millisecond)))

	start := time.Now()
	_, _, err := b.ReadFrom(make([]byte, 8))
	require.Error(t, err)

	var nerr net.Error
	require.True(t, errors.As(err, &nerr))
	assert.True(t, nerr.Timeout())
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPacketConnPastDeadlineFailsImmediately(t *testing.T) {
	_, b := listenPair(t)
	b.SetTimeProvider(fixedTimeProvider{now: time.Unix(2000, 0)})

	require.NoError(t, b.SetDeadline(time.Unix(1000, 0)))

	_, _, err := b.ReadFrom(make([]byte, 8))
	assert.ErrorIs(t, err, ErrTimeout)

	_, err = b.WriteTo([]byte("x"), b.LocalAddr())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPacketConnTimeProviderSwappedDuringCalls(t *testing.T) {
	_, b := listenPair(t)
	require.NoError(t, b.SetDeadline(time.Unix(1000, 0)))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			b.SetTimeProvider(fixedTimeProvider{now: time.Unix(int64(2000+i), 0)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, _, err := b.ReadFrom(make([]byte, 8))
			assert.ErrorIs(t, err, ErrTimeout)
		}
	}()
	wg.Wait()
}

func TestPacketConnZeroDeadlineBlocksUntilData(t *testing.T) {
	a, b := listenPair(t)

	var wg sync.WaitGroup
	wg.Add(1)
	var got string
	go func() {
		defer wg.Done()
		buf := make([]byte, 64)
		n, _, err := b.ReadFrom(buf)
		if err == nil {
			got = string(buf[:n])
		}
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := a.WriteTo([]byte("late"), b.LocalAddr())
	require.NoError(t, err)

	wg.Wait()
	assert.Equal(t, "late", got)
}

func TestPacketConnCloseUnblocksReader(t *testing.T) {
	_, b := listenPair(t)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := b.ReadFrom(make([]byte, 8))
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(time.Second):
		t.Fatal("ReadFrom did not return after Close")
	}
}

func TestPacketConnOperationsAfterClose(t *testing.T) {
	a, b := listenPair(t)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, _, err := a.ReadFrom(make([]byte, 8))
	assert.ErrorIs(t, err, ErrConnectionClosed)

	_, err = a.WriteTo([]byte("x"), b.LocalAddr())
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

type stringAddr string

func (a stringAddr) Network() string { return "udp" }
func (a stringAddr) String() string  { return string(a) }

func TestPacketConnWriteToAddressForms(t *testing.T) {
	a, b := listenPair(t)

	_, err := a.WriteTo([]byte("x"), stringAddr("127.0.0.1:7002"))
	require.NoError(t, err)

	buf := make([]byte, 8)
	require.NoError(t, b.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := b.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "x", string(buf[:n]))

	_, err = a.WriteTo([]byte("x"), stringAddr("not-an-address"))
	assert.ErrorIs(t, err, ErrUnsupportedAddr)

	_, err = a.WriteTo([]byte("x"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedAddr)
}

func TestListenPacketAddresses(t *testing.T) {
	stack := simstack.NewSimulatedStack(nil)
	defer stack.Close()

	conn, err := ListenPacket(stack, "")
	require.NoError(t, err)
	defer conn.Close()
	addr := conn.LocalAddr().(*net.UDPAddr)
	assert.NotZero(t, addr.Port)

	conn2, err := ListenPacket(stack, ":7100")
	require.NoError(t, err)
	defer conn2.Close()
	assert.Equal(t, 7100, conn2.LocalAddr().(*net.UDPAddr).Port)

	_, err = ListenPacket(stack, "bogus")
	assert.Error(t, err)
}
