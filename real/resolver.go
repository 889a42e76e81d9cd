package real

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/opd-ai/dgram/interfaces"
)

// resolver answers GetHostByName from a static hosts table first and the
// system resolver second. IPv4 answers are preferred.
type resolver struct {
	hosts  map[string]netip.Addr
	lookup func(ctx context.Context, network, host string) ([]netip.Addr, error)
}

func newResolver(hosts map[string]string) *resolver {
	r := &resolver{
		hosts:  make(map[string]netip.Addr),
		lookup: net.DefaultResolver.LookupNetIP,
	}
	for name, value := range hosts {
		if addr, err := netip.ParseAddr(value); err == nil {
			r.hosts[normalizeHost(name)] = addr
		}
	}
	return r
}

func (r *resolver) resolve(ctx context.Context, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr, nil
	}
	if addr, ok := r.hosts[normalizeHost(host)]; ok {
		return addr, nil
	}

	addrs, err := r.lookup(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %v", interfaces.ErrDNSFailure, err)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("%w: no addresses for %q", interfaces.ErrDNSFailure, host)
	}
	for _, addr := range addrs {
		if addr.Unmap().Is4() {
			return addr.Unmap(), nil
		}
	}
	return addrs[0], nil
}

func normalizeHost(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}
