// Package userspace provides a network stack that runs entirely inside the
// process on gVisor's netstack.
//
// The stack owns one loopback NIC with a single address (127.0.0.1 unless
// configured otherwise) and routes every destination through it, so
// sockets of the same Stack can exchange datagrams without touching the
// host's network. It exercises the blocking socket core against a real
// TCP/IP implementation whose readiness events come from netstack waiter
// queues rather than from the operating system.
package userspace
