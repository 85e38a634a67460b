//go:build linux

package subscribe

import (
	"net"

	"golang.org/x/sys/unix"
)

// tcpCorker clears TCP_CORK on a connection's socket via its raw fd,
// mirroring archive/file_linux.go's use of golang.org/x/sys/unix for
// Linux-only socket/file option twiddling.
type tcpCorker struct {
	conn *net.TCPConn
}

// NewCorker wraps a TCP connection so it can be uncorked after the
// subscribe header is written.
func NewCorker(conn *net.TCPConn) Corker {
	return &tcpCorker{conn: conn}
}

func (c *tcpCorker) Uncork() error {
	raw, err := c.conn.SyscallConn()
	if err != nil {
		return err
	}
	var setErr error
	if err := raw.Control(func(fd uintptr) {
		setErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_CORK, 0)
	}); err != nil {
		return err
	}
	return setErr
}
