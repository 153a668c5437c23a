// Package netutil opens raw listening sockets shared by all three server
// back-ends. Every back-end needs the listen socket as a bare file
// descriptor (to multiplex it with golang.org/x/sys/unix.Poll alongside a
// self-pipe, a notification pipe, or a fixed-size client-fd table), so this
// package bypasses net.Listen and talks to the socket(2)/bind(2)/listen(2)
// syscalls directly.
package netutil

import (
	"io"
	"net"

	"golang.org/x/sys/unix"

	"scalable-server/internal/xerr"
)

// FDConn adapts a raw fd to io.Reader/io.Writer via direct unix.Read/Write
// calls. Deliberately NOT backed by os.File: os.File installs a GC finalizer
// that closes its fd when the wrapper becomes unreachable, which would race
// with a back-end's own poll-table ownership of the same fd across
// repeated, short-lived wraps.
type FDConn struct {
	Fd int
}

// FDFile is an alias kept for call-site readability where a back-end treats
// an accepted client socket as "the connection".
func FDFile(fd int) *FDConn { return &FDConn{Fd: fd} }

func (c *FDConn) Read(p []byte) (int, error) {
	n, err := unix.Read(c.Fd, p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (c *FDConn) Write(p []byte) (int, error) {
	return unix.Write(c.Fd, p)
}

// Close closes the underlying fd, ignoring EBADF (see CloseQuiet).
func (c *FDConn) Close() error {
	CloseQuiet(c.Fd)
	return nil
}

// Backlog is the listen(2) backlog depth used by all three back-ends.
const Backlog = 100

// Listen opens, binds, and listens on addr, returning the raw fd. Callers
// own the fd and must unix.Close it.
func Listen(addr *net.TCPAddr) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, xerr.Wrap(xerr.EListen, "socket", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, xerr.Wrap(xerr.EListen, "setsockopt SO_REUSEADDR", err)
	}

	var sa unix.SockaddrInet4
	sa.Port = addr.Port
	if ip4 := addr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}

	if err := unix.Bind(fd, &sa); err != nil {
		unix.Close(fd)
		return -1, xerr.Wrap(xerr.EListen, "bind", err)
	}
	if err := unix.Listen(fd, Backlog); err != nil {
		unix.Close(fd)
		return -1, xerr.Wrap(xerr.EListen, "listen", err)
	}

	return fd, nil
}

// Accept accepts one connection on the listen fd, returning the client fd
// and its peer address.
func Accept(listenFd int) (clientFd int, peer *net.TCPAddr, err error) {
	nfd, sa, err := unix.Accept(listenFd)
	if err != nil {
		return -1, nil, err
	}

	peer = &net.TCPAddr{}
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		peer.IP = net.IP(in4.Addr[:]).To4()
		peer.Port = in4.Port
	}

	return nfd, peer, nil
}

// CloseQuiet closes fd, ignoring EBADF: the fd may already be closed, which
// is treated as non-fatal teardown rather than an error.
func CloseQuiet(fd int) {
	if fd < 0 {
		return
	}
	if err := unix.Close(fd); err != nil && err != unix.EBADF {
		_ = err // best-effort teardown; nothing actionable beyond EBADF tolerance
	}
}
