// Package net adapts dgram sockets to the standard library's networking
// interfaces.
//
// PacketConn implements net.PacketConn over a dgram.UDPSocket, so code
// written against the standard library can run on any network stack: the
// operating system's, a userspace stack or the in-memory simulation.
//
// Example usage:
//
//	stack := testing.NewSimulatedStack(nil)
//	conn, err := dgramnet.ListenPacket(stack, "127.0.0.1:9000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	conn.SetReadDeadline(time.Now().Add(time.Second))
//	buf := make([]byte, 1500)
//	n, from, err := conn.ReadFrom(buf)
//	var nerr net.Error
//	if errors.As(err, &nerr) && nerr.Timeout() {
//	    // nothing arrived in time
//	}
//
// Deadlines follow net.Conn semantics: a zero deadline blocks until a
// datagram is sent or received, and a deadline in the past fails
// immediately with an error whose Timeout method reports true. A deadline
// change does not affect a call that is already blocked.
package net
