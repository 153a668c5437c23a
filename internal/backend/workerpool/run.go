package workerpool

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"scalable-server/internal/core"
	"scalable-server/internal/ipc/fdpass"
	"scalable-server/internal/netutil"
)

// Run is the parent main loop: multiplex the listen slot, the pipe slot,
// and the client slots; dispatch ready clients to workers over the domain
// socket; re-enable slots on pipe notification.
func (s *State) Run(o *core.Object) (core.LifecycleState, error) {
	for {
		n, err := unix.Poll(s.polls, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return core.Error, err
		}
		if n == 0 {
			continue
		}

		if s.pipe.Fired(s.polls[2+MaxConnections].Revents) {
			return core.Close, nil
		}

		if s.polls[0].Revents&unix.POLLIN != 0 {
			s.acceptOne()
		}

		if s.polls[1].Revents&unix.POLLIN != 0 {
			if err := s.handlePipeNotification(); err != nil {
				return core.Error, err
			}
		}

		for i := range s.slots {
			pf := &s.polls[2+i]
			if pf.Fd <= 0 || pf.Revents&unix.POLLIN == 0 {
				continue
			}
			if err := s.dispatch(i); err != nil {
				return core.Error, err
			}
		}
	}
}

// acceptOne accepts into the first free slot and clears listen interest at
// capacity, matching the poll-server back-end's accept policy.
func (s *State) acceptOne() {
	free := -1
	for i, sl := range s.slots {
		if sl.fd == 0 {
			free = i
			break
		}
	}
	if free < 0 {
		return
	}

	clientFd, peer, err := netutil.Accept(s.listenFd)
	if err != nil {
		return
	}

	s.slots[free].fd = int32(clientFd)
	if ip4 := peer.IP.To4(); ip4 != nil {
		copy(s.slots[free].peer[:], ip4)
	}
	s.slots[free].port = peer.Port
	s.polls[2+free] = unix.PollFd{Fd: int32(clientFd), Events: unix.POLLIN}
	s.active++

	if s.active >= MaxConnections {
		s.polls[0].Events = 0
	}
}

// retireBit marks a pipe notification as "connection closed, retire the
// slot" rather than "blob processed, re-enable dispatch": a dispatched
// connection the worker discovers is closed must not be re-admitted to the
// dispatch rotation.
const retireBit = int32(1 << 30)

// handlePipeNotification reads the original fd number back from a child,
// posts pipe_write_sem, and either restores the matching slot's readiness
// (re-enable) or retires it (peer closed).
func (s *State) handlePipeNotification() error {
	var hdr [4]byte
	if err := readFull(s.pipeR, hdr[:]); err != nil {
		return err
	}
	v := int32(binary.BigEndian.Uint32(hdr[:]))

	if err := s.sems[semPipeWrite].Post(); err != nil {
		return err
	}

	retire := v&retireBit != 0
	fd := v &^ retireBit

	for i := range s.slots {
		if s.slots[i].fd != -fd {
			continue
		}

		if retire {
			netutil.CloseQuiet(int(fd))
			s.slots[i] = clientSlot{}
			s.polls[2+i].Fd = -1
			s.active--
			if s.active < MaxConnections {
				s.polls[0].Events = unix.POLLIN
			}
		} else {
			s.slots[i].fd = fd
			s.polls[2+i].Fd = fd
		}
		break
	}
	return nil
}

// dispatch sends the client fd to a worker via SCM_RIGHTS, carrying the
// parent-side fd number as the correlation token, then negates the slot to
// disable further dispatch until completion.
func (s *State) dispatch(i int) error {
	fd := s.slots[i].fd
	if fd <= 0 {
		return nil
	}

	if err := s.sems[semDomainWrite].Wait(); err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}

	if err := fdpass.SendFD(s.domainW, int(fd), uint32(fd)); err != nil {
		return err
	}

	if err := s.sems[semDomainRead].Post(); err != nil {
		return err
	}

	s.slots[i].fd = -fd
	s.polls[2+i].Fd = -fd

	return nil
}

func readFull(fd int, b []byte) error {
	for len(b) > 0 {
		n, err := unix.Read(fd, b)
		if err != nil {
			return err
		}
		if n == 0 {
			return unix.ECONNRESET
		}
		b = b[n:]
	}
	return nil
}
