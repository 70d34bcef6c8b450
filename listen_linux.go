//go:build linux

package simphttpd

import (
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Listen opens an IPv4 TCP listener with a backlog of listenBacklog.
func Listen(host string, port int) (net.Listener, error) {
	ip, err := resolveIPv4(host)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}
	addr := &unix.SockaddrInet4{Port: port}
	copy(addr.Addr[:], ip)
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}

	f := os.NewFile(uintptr(fd), "simphttpd-listener")
	defer f.Close()
	return net.FileListener(f)
}
