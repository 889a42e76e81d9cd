// Package limits provides centralized datagram size constants and validation
// functions shared by the socket core and the network stacks.
//
// # Size Limits
//
//   - MaxUDPPayload (65507 bytes): the largest payload an IPv4 UDP datagram
//     can carry (65535 minus the 20 byte IPv4 header and 8 byte UDP header).
//
//   - MaxIPv6UDPPayload (65527 bytes): the largest payload of a non-jumbo IPv6
//     UDP datagram; the IPv6 header is not part of the payload length.
//
//   - MaxReceiveBuffer (65536 bytes): a receive buffer of this size never
//     truncates a datagram.
//
// # Validation Functions
//
//	err := limits.ValidateDatagram(payload, netip.MustParseAddrPort("10.0.0.1:7"))
//	if errors.Is(err, limits.ErrDatagramTooLarge) {
//	    // split the payload at the application layer
//	}
//
// Unlike stream protocols, an empty datagram is valid and is delivered as a
// zero-length read on the receiving side.
//
// # Queue Depth
//
// Stacks that buffer datagrams in memory bound their per-socket queues with
// ClampQueueDepth so a flooding peer cannot exhaust memory; datagrams arriving
// at a full queue are dropped, as a kernel would.
package limits
