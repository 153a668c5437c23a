// Package selfpipe implements the classic self-pipe signal trick, shared
// by all three server back-ends and the client controller.
//
// A back-end's readiness multiplexer classically unblocks on a signal via
// EINTR; in Go, os/signal delivers signals through a channel serviced by
// the runtime rather than a classic async signal handler, so a raw
// unix.Poll call is not guaranteed to observe EINTR on every signal. The
// self-pipe — armed by a goroutine reading from signal.Notify and writing
// one byte into a pipe — gives every poll loop an extra, always-reliable fd
// to wait on instead: no new accepts after a shutdown signal, and a
// graceful (not erroring) loop exit.
package selfpipe

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// Pipe is an armed self-pipe: a read/write fd pair woken by a goroutine
// watching signal.Notify.
type Pipe struct {
	r, w   *os.File
	notify chan os.Signal
}

// New creates the pipe and arms it against SIGINT/SIGTERM.
func New() (*Pipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	p := &Pipe{r: r, w: w, notify: make(chan os.Signal, 1)}
	signal.Notify(p.notify, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if _, ok := <-p.notify; ok {
			_, _ = p.w.Write([]byte{1})
		}
	}()

	return p, nil
}

// ReadFd returns the read end's raw fd, for inclusion in a poll table.
func (p *Pipe) ReadFd() int { return int(p.r.Fd()) }

// Fired reports whether the given poll revents indicate the self-pipe woke
// the loop.
func (p *Pipe) Fired(revents int16) bool {
	return revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
}

// Close stops signal delivery and closes both pipe ends.
func (p *Pipe) Close() {
	signal.Stop(p.notify)
	close(p.notify)
	p.r.Close()
	p.w.Close()
}
