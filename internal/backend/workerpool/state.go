// Package workerpool implements the pre-forked worker-pool back-end, the
// hardest of the three. A parent process accepts connections and dispatches
// each ready client fd to one of NumChildProcesses workers over a UNIX
// domain socket pair via SCM_RIGHTS, coordinated by four System V semaphores
// and a child-to-parent notification pipe.
//
// Go has no safe fork(2) in a multithreaded runtime, so "forking" a worker
// is realized by self-re-exec: the parent re-invokes its own executable with
// a sentinel environment variable and the domain-socket/pipe fds inherited
// through os/exec.Cmd.ExtraFiles.
package workerpool

import (
	"fmt"
	"math/rand"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"scalable-server/internal/backend"
	"scalable-server/internal/core"
	"scalable-server/internal/ipc/sysvsem"
	"scalable-server/internal/netutil"
	"scalable-server/internal/selfpipe"
	"scalable-server/internal/xerr"
)

func init() {
	backend.Register("worker-pool", func() backend.State { return &State{} })
}

// NumChildProcesses is the fixed size of the worker pool.
const NumChildProcesses = 4

// MaxConnections is the number of client slots in the parent's readiness
// table.
const MaxConnections = 5

// Environment variables used to hand off the self-re-exec "fork" and to let
// a child attach to the parent's IPC primitives without re-parsing the full
// CLI configuration.
const (
	EnvChildIndex = "SCALABLE_SERVER_WORKER_INDEX"
	EnvSemToken   = "SCALABLE_SERVER_WORKER_SEM_TOKEN"
	EnvLogPath    = "SCALABLE_SERVER_WORKER_LOG_PATH"
)

// Semaphore token offsets, so a single base token (passed to children via
// EnvSemToken) addresses all four named semaphores.
const (
	semPipeWrite = iota
	semDomainRead
	semDomainWrite
	semLog
)

type clientSlot struct {
	fd   int32 // negative while dispatched/in-flight and awaiting a child reply
	peer [4]byte
	port int
}

// State is the parent half of the worker-pool back-end. (The child half is
// RunChild in child.go, which runs in the re-exec'd process and never
// constructs a State.)
type State struct {
	listenFd int
	pipeR    int // P_read, parent-owned
	pipeW    *os.File
	domainW  int // D_write, parent-owned
	domainR  *os.File

	sems [4]*sysvsem.Semaphore

	pipe *selfpipe.Pipe

	polls  []unix.PollFd // [0]=listen [1]=pipeR [2:2+MaxConnections]=clients [last]=self-pipe
	slots  []clientSlot
	active int

	children []*exec.Cmd
	semToken int32
	logPath  string
}

func (s *State) Initialize(o *core.Object) (core.LifecycleState, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return core.Error, xerr.Wrap(xerr.EIPC, "workerpool: pipe", err)
	}
	s.pipeR = int(pr.Fd())
	s.pipeW = pw

	dr, dw, err := unixSocketpair()
	if err != nil {
		pr.Close()
		pw.Close()
		return core.Error, err
	}
	s.domainR = os.NewFile(uintptr(dr), "domain-read")
	s.domainW = dw

	s.semToken = int32(rand.Int31())
	names := [4]string{"pipe_write_sem", "domain_read_sem", "domain_write_sem", "log_sem"}
	initial := [4]uint16{1, 0, 1, 1}
	for i := range s.sems {
		sem, err := sysvsem.Open(s.semToken+int32(i), initial[i])
		if err != nil {
			return core.Error, xerr.Wrap(xerr.EIPC, fmt.Sprintf("workerpool: semaphore %s", names[i]), err)
		}
		s.sems[i] = sem
	}

	s.logPath = o.LogPathHint()

	if err := s.spawnChildren(); err != nil {
		return core.Error, err
	}

	// The parent closes its copies of the pipe-write and domain-read fds:
	// those were only needed for the children's inherited copies via
	// ExtraFiles.
	s.pipeW.Close()
	s.domainR.Close()

	fd, err := netutil.Listen(o.ListenAddr)
	if err != nil {
		return core.Error, err
	}
	s.listenFd = fd

	sp, err := selfpipe.New()
	if err != nil {
		netutil.CloseQuiet(fd)
		return core.Error, err
	}
	s.pipe = sp

	s.slots = make([]clientSlot, MaxConnections)
	s.polls = make([]unix.PollFd, 3+MaxConnections)
	s.polls[0] = unix.PollFd{Fd: int32(s.listenFd), Events: unix.POLLIN}
	s.polls[1] = unix.PollFd{Fd: int32(s.pipeR), Events: unix.POLLIN}
	for i := range s.slots {
		s.polls[2+i].Fd = -1
	}
	s.polls[2+MaxConnections] = unix.PollFd{Fd: int32(sp.ReadFd()), Events: unix.POLLIN}

	return core.Run, nil
}

func (s *State) spawnChildren() error {
	exe, err := os.Executable()
	if err != nil {
		return xerr.Wrap(xerr.EChild, "workerpool: os.Executable", err)
	}

	for i := 0; i < NumChildProcesses; i++ {
		cmd := exec.Command(exe, os.Args[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = append(os.Environ(),
			fmt.Sprintf("%s=%d", EnvChildIndex, i),
			fmt.Sprintf("%s=%d", EnvSemToken, s.semToken),
			fmt.Sprintf("%s=%s", EnvLogPath, s.logPath),
		)
		// Fd 3 = domain-read, fd 4 = pipe-write in the child; the
		// pipe-read and domain-write ends are close-on-exec, so the child
		// never holds them.
		cmd.ExtraFiles = []*os.File{s.domainR, s.pipeW}

		if err := cmd.Start(); err != nil {
			return xerr.Wrap(xerr.EChild, fmt.Sprintf("workerpool: spawn child %d", i), err)
		}
		s.children = append(s.children, cmd)
	}

	return nil
}

func unixSocketpair() (read, write int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, 0, xerr.Wrap(xerr.EIPC, "workerpool: socketpair", err)
	}
	return fds[0], fds[1], nil
}

// Close tears down the parent half: signals every child, waits for each,
// closes the pipe/domain fds and all connection fds and the listen fd, then
// unlinks all four semaphores. Safe to call more than once.
func (s *State) Close(o *core.Object) (core.LifecycleState, error) {
	for _, c := range s.children {
		if c.Process != nil {
			_ = c.Process.Signal(os.Interrupt)
		}
	}
	for _, c := range s.children {
		_, _ = c.Process.Wait()
	}
	s.children = nil

	if s.pipe != nil {
		s.pipe.Close()
		s.pipe = nil
	}
	netutil.CloseQuiet(s.pipeR)
	netutil.CloseQuiet(s.domainW)
	for i := range s.slots {
		fd := s.slots[i].fd
		if fd < 0 {
			fd = -fd
		}
		if fd != 0 {
			netutil.CloseQuiet(int(fd))
		}
		s.slots[i] = clientSlot{}
	}
	netutil.CloseQuiet(s.listenFd)
	s.listenFd = -1

	for _, sem := range s.sems {
		if sem != nil {
			_ = sem.Unlink()
		}
	}

	return core.Exit, nil
}
