package simphttpd

import (
	"fmt"
	"net"
)

func resolveIPv4(host string) (net.IP, error) {
	if host == "" {
		return net.IPv4zero.To4(), nil
	}
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, fmt.Errorf("%s is not an IPv4 address", host)
	}
	addr, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return nil, err
	}
	return addr.IP.To4(), nil
}
