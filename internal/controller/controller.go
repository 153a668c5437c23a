// Package controller implements the client controller: listens for
// worker-client check-ins, and on the operator typing "start" broadcasts a
// START opcode, the payload record, and — after the test duration — a STOP
// opcode.
package controller

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"scalable-server/internal/concurrency"
	"scalable-server/internal/logger"
	"scalable-server/internal/netutil"
	"scalable-server/internal/selfpipe"
	"scalable-server/internal/wire"
	"scalable-server/internal/xerr"
)

// MaxConns is the largest number of checked-in worker-client connections
// the controller will track.
const MaxConns = 500

// StartCommand is the literal line the operator types on stdin to begin.
const StartCommand = "start"

// Config is the parsed CLI configuration for the controller.
type Config struct {
	ListenPort int
	ServerIP   string
	ServerPort int
	DataPath   string
	Duration   time.Duration
}

// Run is the controller's main loop: multiplex the listen fd and stdin
// while waiting for "start", then broadcast START, run the test-duration
// countdown, and broadcast STOP.
func Run(cfg Config, log *logger.Logger) error {
	data, err := os.ReadFile(cfg.DataPath)
	if err != nil {
		return xerr.Wrap(xerr.EConfig, fmt.Sprintf("controller: read data file %q", cfg.DataPath), err)
	}

	listenFd, err := netutil.Listen(&net.TCPAddr{IP: net.IPv4zero, Port: cfg.ListenPort})
	if err != nil {
		return err
	}
	defer netutil.CloseQuiet(listenFd)

	pipe, err := selfpipe.New()
	if err != nil {
		return err
	}
	defer pipe.Close()

	stdin := bufio.NewScanner(os.Stdin)
	stdinCh := make(chan string)
	go func() {
		for stdin.Scan() {
			stdinCh <- stdin.Text()
		}
		close(stdinCh)
	}()

	var conns []net.Conn
	polls := []unix.PollFd{
		{Fd: int32(listenFd), Events: unix.POLLIN},
		{Fd: int32(pipe.ReadFd()), Events: unix.POLLIN},
	}

	started := false

	for !started {
		n, err := unix.Poll(polls, 500)
		if err != nil && err != unix.EINTR {
			return err
		}
		if n > 0 && pipe.Fired(polls[1].Revents) {
			log.Infof("controller: shutdown before test start")
			return nil
		}
		if n > 0 && polls[0].Revents&unix.POLLIN != 0 {
			clientFd, _, aerr := netutil.Accept(listenFd)
			if aerr == nil {
				if len(conns) < MaxConns {
					if c := netConnFromFd(clientFd); c != nil {
						conns = append(conns, c)
						log.Infof("controller: worker checked in (%d total)", len(conns))
					}
				} else {
					netutil.CloseQuiet(clientFd)
				}
			}
		}

		select {
		case line, ok := <-stdinCh:
			if !ok {
				return nil
			}
			if line == StartCommand {
				started = true
			}
		default:
		}
	}

	log.Infof("controller: broadcasting START to %d workers", len(conns))
	payload := wire.Payload{ServerPort: uint16(cfg.ServerPort), ServerIP: cfg.ServerIP, Data: data}
	broadcastStart(conns, payload, log)

	ticker := concurrency.New(1, true, nil)
	bar := ticker.Bar("test duration", int64(cfg.Duration/time.Second))
	deadline := time.After(cfg.Duration)
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	sigDuringTest := make(chan struct{})
	go func() {
		var b [1]byte
		if _, err := unix.Read(pipe.ReadFd(), b[:]); err == nil {
			close(sigDuringTest)
		}
	}()

loop:
	for {
		select {
		case <-deadline:
			break loop
		case <-sigDuringTest:
			log.Infof("controller: shutdown signal during test, broadcasting STOP early")
			break loop
		case <-tick.C:
			if bar != nil {
				bar.Increment()
			}
		}
	}

	log.Infof("controller: broadcasting STOP to %d workers", len(conns))
	broadcastStop(conns)

	for _, c := range conns {
		c.Close()
	}
	return nil
}

func broadcastStart(conns []net.Conn, payload wire.Payload, log *logger.Logger) {
	for _, c := range conns {
		if err := wire.WriteOpcode(c, wire.OpStart); err != nil {
			log.Errorf("controller: start to %s: %v", c.RemoteAddr(), err)
			continue
		}
		if err := wire.WritePayload(c, payload); err != nil {
			log.Errorf("controller: payload to %s: %v", c.RemoteAddr(), err)
		}
	}
}

func broadcastStop(conns []net.Conn) {
	for _, c := range conns {
		_ = wire.WriteOpcode(c, wire.OpStop)
	}
}

func netConnFromFd(fd int) net.Conn {
	f := os.NewFile(uintptr(fd), "worker")
	c, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil
	}
	return c
}
