// Package onetoone implements the blocking one-connection-at-a-time server
// back-end: a self-pipe multiplexed against the listen fd via a
// poll-equivalent wait, a length-prefix receive loop capped at 1 MiB per
// chunk, and a CSV timing record per request.
package onetoone

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

func init() {
	backend.Register("one-to-one", func() backend.State { return &State{} })
}

// State holds the listen fd and the self-pipe used to interrupt the
// accept-wait loop on shutdown.
type State struct {
	listenFd int
	pipe     *selfpipe.Pipe
}

// Initialize opens the listen socket and arms the self-pipe.
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

	return core.Run, nil
}

// Run accepts and serves one connection at a time until a shutdown signal
// arrives on the self-pipe.
func (s *State) Run(o *core.Object) (core.LifecycleState, error) {
	polls := []unix.PollFd{
		{Fd: int32(s.listenFd), Events: unix.POLLIN},
		{Fd: int32(s.pipe.ReadFd()), Events: unix.POLLIN},
	}

	for {
		n, err := unix.Poll(polls, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return core.Error, err
		}
		if n == 0 {
			continue
		}

		if s.pipe.Fired(polls[1].Revents) {
			return core.Close, nil
		}

		if polls[0].Revents&unix.POLLIN == 0 {
			continue
		}

		clientFd, peer, err := netutil.Accept(s.listenFd)
		if err != nil {
			if err == unix.EINTR {
				return core.Close, nil
			}
			continue
		}

		if o.Metrics != nil {
			o.Metrics.ConnectionsAccepted.Inc()
			o.Metrics.ConnectionsActive.Inc()
		}
		s.serve(o, clientFd, peer)
		if o.Metrics != nil {
			o.Metrics.ConnectionsActive.Dec()
		}
	}
}

// serve handles one connection to completion: repeated
// receive-blob/log/reply until the peer closes or errors.
func (s *State) serve(o *core.Object, clientFd int, peer *net.TCPAddr) {
	f := netutil.FDFile(clientFd)
	defer f.Close()

	for {
		start := time.Now()
		hi := time.Now()

		declared, received, err := wire.ReceiveBlob(f, func(n int) []byte {
			return o.Pool.Get()[:n]
		})
		end := time.Now()

		if err != nil {
			if o.Rec != nil && received > 0 {
				_ = o.Rec.Append(logrecord.Record{
					Start:      start,
					Identifier: identifier(clientFd),
					PeerIP:     peer.IP.String(),
					PeerPort:   peer.Port,
					Bytes:      received,
					End:        end,
					Elapsed:    end.Sub(start),
					HighRes:    time.Since(hi),
				})
			}
			break
		}

		if o.Metrics != nil {
			o.Metrics.BytesEchoed.Add(float64(received))
			o.Metrics.RequestDuration.Observe(end.Sub(start).Seconds())
		}

		if o.Rec != nil {
			_ = o.Rec.Append(logrecord.Record{
				Start:      start,
				Identifier: identifier(clientFd),
				PeerIP:     peer.IP.String(),
				PeerPort:   peer.Port,
				Bytes:      received,
				End:        end,
				Elapsed:    end.Sub(start),
				HighRes:    time.Since(hi),
			})
		}

		_ = wire.SendCount(f, received)

		if received < declared {
			break
		}
	}
}

// Close releases the listen fd and the self-pipe. Safe to call more than
// once.
func (s *State) Close(o *core.Object) (core.LifecycleState, error) {
	if s.pipe != nil {
		s.pipe.Close()
		s.pipe = nil
	}
	netutil.CloseQuiet(s.listenFd)
	s.listenFd = -1
	return core.Exit, nil
}

func identifier(fd int) string {
	return fmt.Sprintf("pid:%d/fd:%d", os.Getpid(), fd)
}
