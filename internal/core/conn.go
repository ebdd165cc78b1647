package core

import (
	"net"
	"strings"
)

// Conn is the send side of a socket, as seen by the core. ws.Client implements it.
// Send and Ping must not block; Close must be idempotent.
type Conn interface {
	ID() string
	RemoteAddr() string
	Send(msg any) bool
	Ping()
	Close()
}

// normalizeAddress strips ports and prints IPs canonically so that
// "::ffff:10.0.0.1" and "10.0.0.1:5555" both become "10.0.0.1".
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if ip := net.ParseIP(addr); ip != nil {
		return ip.String()
	}
	return addr
}
