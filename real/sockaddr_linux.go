//go:build linux

package real

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// toSockaddr converts addr for a socket of the given family. IPv4
// addresses on an IPv6 socket become v4-mapped addresses.
func toSockaddr(family int, addr netip.AddrPort) (unix.Sockaddr, error) {
	ip := addr.Addr()
	if !ip.IsValid() {
		ip = netip.IPv4Unspecified()
	}

	if family == unix.AF_INET6 {
		if ip == netip.IPv4Unspecified() {
			ip = netip.IPv6Unspecified()
		}
		return &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}, nil
	}

	ip = ip.Unmap()
	if !ip.Is4() {
		return nil, fmt.Errorf("address %v is not reachable from an IPv4 socket", addr)
	}
	return &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.As4()}, nil
}

func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr).Unmap(), uint16(sa.Port))
	default:
		return netip.AddrPort{}
	}
}
