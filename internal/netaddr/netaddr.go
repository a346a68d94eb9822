package netaddr

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// ErrParse is wrapped by every parse failure so callers can match
// malformed-address errors with errors.Is.
var ErrParse = errors.New("malformed address")

// Parse extracts the IP from an address string, tolerating an
// optional port suffix and bracketed IPv6 literals.
//
// "localhost" maps to 127.0.0.1; the two are equivalent for
// classification purposes and netip.ParseAddr rejects hostnames.
//
// Returns a wrapped ErrParse on malformed input.
func Parse(address string) (netip.Addr, error) {
	host := address

	switch {
	case strings.HasPrefix(host, "["):
		// Bracketed IPv6, with or without a port: [::1] or [::1]:2222.
		end := strings.Index(host, "]")
		if end < 0 {
			return netip.Addr{}, fmt.Errorf("%w: unclosed bracket in %q", ErrParse, address)
		}
		host = host[1:end]
	default:
		// Split on the last colon only when the remainder has no other
		// colons; a bare IPv6 literal has several and keeps them all.
		if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host[:i], ":") {
			host = host[:i]
		}
	}

	if host == "localhost" {
		host = "127.0.0.1"
	}

	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q: %v", ErrParse, address, err)
	}
	return ip.Unmap(), nil
}

// IsLoopback reports whether the address parses to a loopback IP.
func IsLoopback(address string) (bool, error) {
	ip, err := Parse(address)
	if err != nil {
		return false, err
	}
	return ip.IsLoopback(), nil
}

// IsLocal reports whether the address parses to an IP currently bound
// to one of this machine's network interfaces, loopback included.
//
// The interface table is read on every call; no caching, since
// interfaces can change while the process runs.
func IsLocal(address string) (bool, error) {
	ip, err := Parse(address)
	if err != nil {
		return false, err
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false, fmt.Errorf("enumerate interfaces: %w", err)
	}

	for _, a := range addrs {
		var ifIP net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ifIP = v.IP
		case *net.IPAddr:
			ifIP = v.IP
		default:
			continue
		}
		bound, ok := netip.AddrFromSlice(ifIP)
		if !ok {
			continue
		}
		if bound.Unmap() == ip {
			return true, nil
		}
	}
	return false, nil
}
