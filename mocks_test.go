package dgram

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/dgram/interfaces"
)

// ---------------------------------------------------------------------------
// scriptedStack is an INetworkStack whose primitives return scripted results.
// ---------------------------------------------------------------------------

type result struct {
	n   int
	err error
}

var wouldBlock = result{err: interfaces.ErrWouldBlock}

// scriptedStack returns queued results for sends and receives in order and
// falls back to would-block once a queue is exhausted.
type scriptedStack struct {
	mu       sync.Mutex
	sends    []result
	recvs    []result
	callback func()
	open     map[interfaces.Handle]bool
	next     interfaces.Handle
	hosts    map[string]netip.Addr

	sendCalls atomic.Int32
	recvCalls atomic.Int32

	// onSend runs inside every SocketSendTo call, like a stack delivering
	// an event synchronously.
	onSend func()
}

func newScriptedStack() *scriptedStack {
	return &scriptedStack{
		open:  make(map[interfaces.Handle]bool),
		next:  1,
		hosts: map[string]netip.Addr{"peer.test": netip.MustParseAddr("192.0.2.7")},
	}
}

func (f *scriptedStack) scriptSends(results ...result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, results...)
}

func (f *scriptedStack) scriptRecvs(results ...result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recvs = append(f.recvs, results...)
}

func (f *scriptedStack) pop(queue *[]result) result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(*queue) == 0 {
		return wouldBlock
	}
	r := (*queue)[0]
	*queue = (*queue)[1:]
	return r
}

func (f *scriptedStack) fire() {
	f.mu.Lock()
	cb := f.callback
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (f *scriptedStack) Name() string { return "scripted" }

func (f *scriptedStack) SocketOpen(proto interfaces.Protocol) (interfaces.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.next
	f.next++
	f.open[h] = true
	return h, nil
}

func (f *scriptedStack) SocketClose(h interfaces.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open[h] {
		return interfaces.ErrNoSocket
	}
	delete(f.open, h)
	return nil
}

func (f *scriptedStack) SocketBind(h interfaces.Handle, addr netip.AddrPort) error {
	return nil
}

func (f *scriptedStack) SocketLocalAddr(h interfaces.Handle) (netip.AddrPort, error) {
	return netip.MustParseAddrPort("127.0.0.1:4000"), nil
}

func (f *scriptedStack) SocketSendTo(h interfaces.Handle, addr netip.AddrPort, data []byte) (int, error) {
	f.sendCalls.Add(1)
	if f.onSend != nil {
		f.onSend()
	}
	r := f.pop(&f.sends)
	return r.n, r.err
}

func (f *scriptedStack) SocketRecvFrom(h interfaces.Handle, buf []byte) (int, netip.AddrPort, error) {
	f.recvCalls.Add(1)
	r := f.pop(&f.recvs)
	if r.err != nil {
		return 0, netip.AddrPort{}, r.err
	}
	return r.n, netip.MustParseAddrPort("192.0.2.9:53"), nil
}

func (f *scriptedStack) SocketAttach(h interfaces.Handle, callback func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callback = callback
}

func (f *scriptedStack) GetHostByName(ctx context.Context, host string) (netip.Addr, error) {
	if err := ctx.Err(); err != nil {
		return netip.Addr{}, fmt.Errorf("lookup %s: %w", host, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if addr, ok := f.hosts[host]; ok {
		return addr, nil
	}
	return netip.Addr{}, fmt.Errorf("%w: %s", interfaces.ErrDNSFailure, host)
}

func (f *scriptedStack) Close() error { return nil }
