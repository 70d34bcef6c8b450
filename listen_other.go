//go:build !linux

package simphttpd

import (
	"net"
	"strconv"
)

// Listen opens an IPv4 TCP listener. The backlog is left to the runtime on this platform.
func Listen(host string, port int) (net.Listener, error) {
	ip, err := resolveIPv4(host)
	if err != nil {
		return nil, err
	}
	return net.Listen("tcp4", net.JoinHostPort(ip.String(), strconv.Itoa(port)))
}
