// Package netutil selects the local member id from the host's network
// interfaces (spec §6). Grounded on the teacher's pkg/util/net.go address
// enumeration and filtering style, adapted to the spec's exact exclusion
// rules rather than the teacher's IPv4/IPv6 dual-stack node bootstrap.
package netutil

import "net"

// InterfaceAddrsFunc matches net.InterfaceAddrs, overridable for
// deterministic tests (spec §6: "Implementations should expose an override
// for deterministic testing").
type InterfaceAddrsFunc func() ([]net.Addr, error)

// LocalAddrs is the override point; tests replace it with a fixture.
var LocalAddrs InterfaceAddrsFunc = net.InterfaceAddrs

// LocalID returns the address this process should register under as its
// stable network identity: the first remaining address after rejecting
// IPv6 link-local, multicast, site-local and Teredo addresses and any IPv4
// address starting with "169." (APIPA), preferring a non-loopback address.
func LocalID() (string, error) {
	addrs, err := LocalAddrs()
	if err != nil {
		return "", err
	}

	var loopback string
	for _, addr := range addrs {
		ip := ipFromAddr(addr)
		if ip == nil || !eligible(ip) {
			continue
		}
		if ip.IsLoopback() {
			if loopback == "" {
				loopback = ip.String()
			}
			continue
		}
		return ip.String(), nil
	}

	if loopback != "" {
		return loopback, nil
	}
	return "", errNoAddress
}

func ipFromAddr(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	default:
		return nil
	}
}

func eligible(ip net.IP) bool {
	if ip.IsMulticast() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}
	if isSiteLocal(ip) {
		return false
	}
	if isTeredo(ip) {
		return false
	}
	if v4 := ip.To4(); v4 != nil && v4[0] == 169 {
		return false
	}
	return true
}

// isSiteLocal reports fec0::/10, deprecated but still worth excluding since
// the spec calls it out explicitly alongside link-local and multicast.
func isSiteLocal(ip net.IP) bool {
	v6 := ip.To16()
	if v6 == nil || ip.To4() != nil {
		return false
	}
	return v6[0] == 0xfe && v6[1]&0xc0 == 0xc0
}

// isTeredo reports the 2001::/32 Teredo tunneling prefix.
func isTeredo(ip net.IP) bool {
	v6 := ip.To16()
	if v6 == nil || ip.To4() != nil {
		return false
	}
	return v6[0] == 0x20 && v6[1] == 0x01 && v6[2] == 0x00 && v6[3] == 0x00
}

var errNoAddress = &noAddressError{}

type noAddressError struct{}

func (*noAddressError) Error() string { return "no eligible local address found" }
