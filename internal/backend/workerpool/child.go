package workerpool

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"scalable-server/internal/ipc/fdpass"
	"scalable-server/internal/ipc/sysvsem"
	"scalable-server/internal/logger"
	"scalable-server/internal/logrecord"
	"scalable-server/internal/netutil"
	"scalable-server/internal/wire"
	"scalable-server/internal/xerr"
)

// Inherited fd numbers, fixed by the order State.spawnChildren sets
// cmd.ExtraFiles in.
const (
	fdDomainRead = 3
	fdPipeWrite  = 4
)

const semWaitPoll = 200 * time.Millisecond

// RunChild is the worker-pool child main loop. It never constructs a State;
// it is invoked directly from cmd/server's main() when the self-re-exec
// sentinel environment variable is present.
func RunChild(index int, semToken int32, logPath string, log *logger.Logger) error {
	sems := [4]*sysvsem.Semaphore{}
	for i := range sems {
		sem, err := sysvsem.Open(semToken+int32(i), 0)
		if err != nil {
			return xerr.Wrap(xerr.EIPC, fmt.Sprintf("child %d attach semaphore", index), err)
		}
		sems[i] = sem
	}

	rec, err := logrecord.OpenAppend(logPath)
	if err != nil {
		return xerr.Wrap(xerr.EConfig, fmt.Sprintf("child %d open log", index), err)
	}
	defer rec.Close()

	var running int32 = 1
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		atomic.StoreInt32(&running, 0)
	}()

	for atomic.LoadInt32(&running) == 1 {
		if err := waitTimeout(sems[semDomainRead], &running); err != nil {
			if err == sysvsem.ErrTimeout {
				continue
			}
			return err
		}

		fd, token, err := fdpass.RecvFD(fdDomainRead)
		if err != nil {
			log.Errorf("child %d: recvfd: %v", index, err)
			continue
		}

		if err := sems[semDomainWrite].Post(); err != nil {
			return err
		}

		handleDispatched(index, fd, token, sems, rec, log)
	}

	unix.Close(fdDomainRead)
	unix.Close(fdPipeWrite)
	return nil
}

// handleDispatched receives one blob off a dispatched client fd, releases
// the fd back to the parent over the pipe, logs the transfer, and then
// replies with the byte count.
func handleDispatched(index int, fd int, token uint32, sems [4]*sysvsem.Semaphore, rec *logrecord.Writer, log *logger.Logger) {
	defer unix.Close(fd)

	peer := peerAddr(fd)

	conn := netutil.FDFile(fd)
	start := time.Now()
	hi := time.Now()

	declared, received, rerr := wire.ReceiveBlob(conn, func(n int) []byte {
		return make([]byte, n)
	})
	end := time.Now()

	closed := rerr != nil

	if err := notifyParent(sems[semPipeWrite], token, closed); err != nil {
		log.Errorf("child %d: notify parent: %v", index, err)
	}

	if declared > 0 || received > 0 {
		if err := sems[semLog].Wait(); err == nil {
			_ = rec.Append(logrecord.Record{
				Start:      start,
				Identifier: fmt.Sprintf("pid:%d/fd:%d", os.Getpid(), fd),
				PeerIP:     peer.IP.String(),
				PeerPort:   peer.Port,
				Bytes:      received,
				End:        end,
				Elapsed:    end.Sub(start),
				HighRes:    time.Since(hi),
			})
			sems[semLog].Post()
		}
	}

	if !closed {
		_ = wire.SendCount(conn, received)
	}
}

func notifyParent(sem *sysvsem.Semaphore, token uint32, closed bool) error {
	if err := sem.Wait(); err != nil {
		return err
	}
	defer sem.Post()

	v := int32(token)
	if closed {
		v |= retireBit
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(v))
	return writeFull(fdPipeWrite, hdr[:])
}

func peerAddr(fd int) *net.TCPAddr {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return &net.TCPAddr{}
	}
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		return &net.TCPAddr{IP: net.IP(in4.Addr[:]).To4(), Port: in4.Port}
	}
	return &net.TCPAddr{}
}

func waitTimeout(sem *sysvsem.Semaphore, running *int32) error {
	if atomic.LoadInt32(running) == 0 {
		return sysvsem.ErrTimeout
	}
	return sem.WaitTimeout(semWaitPoll)
}

func writeFull(fd int, b []byte) error {
	for len(b) > 0 {
		n, err := unix.Write(fd, b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
