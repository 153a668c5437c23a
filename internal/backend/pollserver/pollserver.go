// Package pollserver implements the single-process event-multiplexed
// back-end, using golang.org/x/sys/unix.Poll over a fixed-size slot table.
package pollserver

import (
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"scalable-server/internal/backend"
	"scalable-server/internal/core"
	"scalable-server/internal/logrecord"
	"scalable-server/internal/netutil"
	"scalable-server/internal/selfpipe"
	"scalable-server/internal/wire"
)

func identifierFor(fd int) string {
	return fmt.Sprintf("pid:%d/fd:%d", os.Getpid(), fd)
}

// MaxConnections is the client slot table size: poll slot 0 is the listen
// socket, slot 1 the self-pipe, and slots 2..MaxConnections+1 are clients.
const MaxConnections = 5

func init() {
	backend.Register("poll-server", func() backend.State { return &State{} })
}

type slot struct {
	fd   int
	peer *net.TCPAddr
}

// State is the event-multiplexed back-end's per-process state.
type State struct {
	listenFd int
	pipe     *selfpipe.Pipe

	polls  []unix.PollFd // [0]=listen, [1]=self-pipe, [2:]=clients
	slots  []slot        // parallel to polls[2:]
	active int
}

func (s *State) Initialize(o *core.Object) (core.LifecycleState, error) {
	fd, err := netutil.Listen(o.ListenAddr)
	if err != nil {
		return core.Error, err
	}
	s.listenFd = fd

	p, err := selfpipe.New()
	if err != nil {
		netutil.CloseQuiet(fd)
		return core.Error, err
	}
	s.pipe = p

	s.polls = make([]unix.PollFd, 2+MaxConnections)
	s.polls[0] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	s.polls[1] = unix.PollFd{Fd: int32(p.ReadFd()), Events: unix.POLLIN}
	for i := range s.polls[2:] {
		s.polls[2+i].Fd = -1
	}
	s.slots = make([]slot, MaxConnections)

	return core.Run, nil
}

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

		if s.pipe.Fired(s.polls[1].Revents) {
			return core.Close, nil
		}

		if s.polls[0].Revents&unix.POLLIN != 0 {
			s.acceptOne(o)
		}

		for i := range s.slots {
			pf := &s.polls[2+i]
			if pf.Fd < 0 || pf.Revents == 0 {
				continue
			}

			if pf.Revents&(unix.POLLHUP|unix.POLLERR) != 0 {
				s.closeSlot(o, i)
				continue
			}
			if pf.Revents&unix.POLLIN != 0 {
				if !s.serveOne(o, i) {
					s.closeSlot(o, i)
				}
			}
		}
	}
}

// acceptOne allocates the first free slot, accepts into it, and clears the
// listen slot's interest once capacity is reached.
func (s *State) acceptOne(o *core.Object) {
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

	s.slots[free] = slot{fd: clientFd, peer: peer}
	s.polls[2+free] = unix.PollFd{Fd: int32(clientFd), Events: unix.POLLIN}
	s.active++

	if o.Metrics != nil {
		o.Metrics.ConnectionsAccepted.Inc()
		o.Metrics.ConnectionsActive.Inc()
	}

	if s.active >= MaxConnections {
		s.polls[0].Events = 0
	}
}

// closeSlot handles hang-up/error: close, zero, decrement, restore listen
// interest. o may be nil during final teardown.
func (s *State) closeSlot(o *core.Object, i int) {
	if s.slots[i].fd == 0 {
		return
	}
	netutil.CloseQuiet(s.slots[i].fd)
	s.slots[i] = slot{}
	s.polls[2+i] = unix.PollFd{Fd: -1}
	s.active--

	if o != nil && o.Metrics != nil {
		o.Metrics.ConnectionsActive.Dec()
	}

	if s.active < MaxConnections {
		s.polls[0].Events = unix.POLLIN
	}
}

// serveOne receives one blob to completion, logs, and replies. Returns
// false when the connection should be torn down (peer closed or error).
func (s *State) serveOne(o *core.Object, i int) bool {
	f := netutil.FDFile(s.slots[i].fd)
	peer := s.slots[i].peer

	start := time.Now()
	hi := time.Now()

	declared, received, err := wire.ReceiveBlob(f, func(n int) []byte {
		return o.Pool.Get()[:n]
	})

	end := time.Now()

	if err != nil {
		if o.Rec != nil && received > 0 {
			_ = o.Rec.Append(logrecord.Record{
				Start: start, Identifier: identifierFor(s.slots[i].fd),
				PeerIP: peer.IP.String(), PeerPort: peer.Port,
				Bytes: received, End: end,
				Elapsed: end.Sub(start), HighRes: time.Since(hi),
			})
		}
		return false
	}

	_ = wire.SendCount(f, received)

	if o.Metrics != nil {
		o.Metrics.BytesEchoed.Add(float64(received))
		o.Metrics.RequestDuration.Observe(end.Sub(start).Seconds())
	}

	if o.Rec != nil {
		_ = o.Rec.Append(logrecord.Record{
			Start: start, Identifier: identifierFor(s.slots[i].fd),
			PeerIP: peer.IP.String(), PeerPort: peer.Port,
			Bytes: received, End: end,
			Elapsed: end.Sub(start), HighRes: time.Since(hi),
		})
	}

	return received >= declared
}

func (s *State) Close(o *core.Object) (core.LifecycleState, error) {
	if s.pipe != nil {
		s.pipe.Close()
		s.pipe = nil
	}
	for i := range s.slots {
		s.closeSlot(o, i)
	}
	netutil.CloseQuiet(s.listenFd)
	s.listenFd = -1
	return core.Exit, nil
}
