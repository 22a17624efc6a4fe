// Package connectivity provides the reachability probe the backend
// selector polls before considering cloud candidates.
package connectivity

import (
	"net"
	"time"
)

var defaultProbeAddrs = []string{
	"1.1.1.1:443",
	"8.8.8.8:53",
}

// Checker reports whether the device has a usable network path by dialing
// well-known anycast endpoints with a short timeout.
type Checker struct {
	addrs   []string
	timeout time.Duration
	dial    func(network, addr string, timeout time.Duration) (net.Conn, error)
}

// NewChecker builds a checker using real network dials.
func NewChecker() *Checker {
	return &Checker{
		addrs:   defaultProbeAddrs,
		timeout: 2 * time.Second,
		dial:    net.DialTimeout,
	}
}

// NewCheckerForTests builds a checker with an injectable dialer.
func NewCheckerForTests(addrs []string, dial func(network, addr string, timeout time.Duration) (net.Conn, error)) *Checker {
	return &Checker{
		addrs:   addrs,
		timeout: time.Second,
		dial:    dial,
	}
}

// HasActiveConnection returns true when any probe endpoint accepts a TCP
// connection within the timeout.
func (c *Checker) HasActiveConnection() bool {
	for _, addr := range c.addrs {
		conn, err := c.dial("tcp", addr, c.timeout)
		if err != nil {
			continue
		}
		_ = conn.Close()
		return true
	}
	return false
}
