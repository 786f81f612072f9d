package utils

import (
	"net"
	"os"
)

// LanIP finds the server's own LAN address. Dialing a UDP socket never
// sends a packet; it only forces the kernel to pick the outbound
// interface. Falls back to a hostname lookup, then to loopback.
func LanIP() string {
	if conn, err := net.Dial("udp4", "8.8.8.8:80"); err == nil {
		defer conn.Close()
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
			return addr.IP.String()
		}
	}

	if host, err := os.Hostname(); err == nil {
		if addrs, err := net.LookupHost(host); err == nil && len(addrs) > 0 {
			return addrs[0]
		}
	}

	return "127.0.0.1"
}
