package net

import (
	"net"
	"net/netip"
)

// toAddrPort converts a net.Addr into a UDP endpoint. *net.UDPAddr is
// converted directly; other implementations must print as "ip:port".
func toAddrPort(addr net.Addr) (netip.AddrPort, error) {
	if addr == nil {
		return netip.AddrPort{}, ErrUnsupportedAddr
	}
	if udp, ok := addr.(*net.UDPAddr); ok {
		ap := udp.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return netip.AddrPort{}, ErrUnsupportedAddr
	}
	return ap, nil
}

// toUDPAddr converts a UDP endpoint into a *net.UDPAddr, or nil for the zero endpoint.
func toUDPAddr(ap netip.AddrPort) net.Addr {
	if !ap.IsValid() {
		return nil
	}
	return net.UDPAddrFromAddrPort(ap)
}
