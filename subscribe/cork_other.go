//go:build !linux

package subscribe

import "net"

// noopCorker backs platforms without TCP_CORK; Uncork is a deliberate
// no-op rather than an error, since the only effect of skipping it is
// slightly higher latency on the first block, not incorrect behaviour.
type noopCorker struct{}

// NewCorker returns a no-op Corker on non-Linux platforms.
func NewCorker(conn *net.TCPConn) Corker {
	return noopCorker{}
}

func (noopCorker) Uncork() error { return nil }
