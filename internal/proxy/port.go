package proxy

import (
	"fmt"
	"net"
)

// pickFreePort asks the kernel for an unused loopback TCP port. The port
// is released again before the proxy binds it, which is the usual small
// race every port picker has; the proxy fails loudly at bind time if it
// ever loses it.
func pickFreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("no ports available: %w", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port, nil
}
