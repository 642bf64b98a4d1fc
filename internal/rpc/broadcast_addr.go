package rpc

import (
	"fmt"
	"net"
)

// DeriveBroadcastAddress computes the IPv4 broadcast address for the
// interface that owns localAddr (e.g. 192.168.1.42/24 -> 192.168.1.255),
// for a client's first send before it has latched the leader's address.
func DeriveBroadcastAddress(localAddr net.IP) (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("rpc: list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			if !ipNet.IP.Equal(localAddr) {
				continue
			}
			return broadcastOf(ipNet), nil
		}
	}

	return nil, fmt.Errorf("rpc: no IPv4 interface found for address %s", localAddr)
}

func broadcastOf(ipNet *net.IPNet) net.IP {
	ip4 := ipNet.IP.To4()
	mask := ipNet.Mask
	out := make(net.IP, len(ip4))
	for i := range ip4 {
		out[i] = ip4[i] | ^mask[i]
	}
	return out
}

// FirstIPv4Addr returns the first non-loopback IPv4 address bound to any
// local interface, used to seed DeriveBroadcastAddress when the client has
// not explicitly configured one.
func FirstIPv4Addr() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("rpc: list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			return ipNet.IP, nil
		}
	}

	return nil, fmt.Errorf("rpc: no non-loopback IPv4 interface found")
}
