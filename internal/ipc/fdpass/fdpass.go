// Package fdpass implements cross-process file-description passing over a
// UNIX domain socket pair via SCM_RIGHTS ancillary data, realized with
// golang.org/x/sys/unix's Sendmsg/Recvmsg/UnixRights, which need no cgo.
package fdpass

import (
	"scalable-server/internal/xerr"

	"golang.org/x/sys/unix"
)

// NewPair creates the UNIX domain socket pair the worker-pool back-end
// dispatches client fds over.
func NewPair() (readFd, writeFd int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return 0, 0, xerr.Wrap(xerr.EIPC, "fdpass: socketpair", err)
	}
	return fds[0], fds[1], nil
}

// SendFD sends fd as SCM_RIGHTS ancillary data over sock, carrying token (a
// correlation id the receiver echoes back) as the ordinary 4-byte
// big-endian payload.
func SendFD(sock int, fd int, token uint32) error {
	payload := []byte{
		byte(token >> 24), byte(token >> 16), byte(token >> 8), byte(token),
	}
	rights := unix.UnixRights(fd)
	return unix.Sendmsg(sock, payload, rights, nil, 0)
}

// RecvFD receives one fd and its correlation token from sock.
func RecvFD(sock int) (fd int, token uint32, err error) {
	payload := make([]byte, 4)
	oob := make([]byte, unix.CmsgSpace(4)) // room for exactly one fd

	n, oobn, _, _, err := unix.Recvmsg(sock, payload, oob, 0)
	if err != nil {
		return 0, 0, xerr.Wrap(xerr.EIPC, "fdpass: recvmsg", err)
	}
	if n != 4 {
		return 0, 0, xerr.Newf(xerr.EIPC, "fdpass: short payload (%d bytes)", n)
	}
	token = uint32(payload[0])<<24 | uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3])

	cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return 0, 0, xerr.Wrap(xerr.EIPC, "fdpass: parse control message", err)
	}
	if len(cmsgs) != 1 {
		return 0, 0, xerr.Newf(xerr.EIPC, "fdpass: expected exactly one control message, got %d", len(cmsgs))
	}

	fds, err := unix.ParseUnixRights(&cmsgs[0])
	if err != nil {
		return 0, 0, xerr.Wrap(xerr.EIPC, "fdpass: parse unix rights", err)
	}
	if len(fds) != 1 {
		return 0, 0, xerr.Newf(xerr.EIPC, "fdpass: expected exactly one fd, got %d", len(fds))
	}

	return fds[0], token, nil
}
