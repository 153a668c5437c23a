package sysvsem

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// ErrTimeout is returned by WaitTimeout when the semaphore was not posted
// within the given duration.
var ErrTimeout = errors.New("sysvsem: wait timed out")

// WaitTimeout is sem_wait bounded by a timeout, used by the worker-pool
// back-end's child loop to periodically recheck its "keep running" flag.
//
// Go's runtime forwards SIGINT/SIGTERM to a channel via os/signal rather
// than installing a classic interrupting handler, so a raw semop is not
// guaranteed to return EINTR when a signal arrives. This polls with a
// bounded Semtimedop and checks the flag between attempts instead, giving
// a graceful exit without depending on an EINTR guarantee Go does not make.
func (s *Semaphore) WaitTimeout(d time.Duration) error {
	ts := unix.NsecToTimespec(d.Nanoseconds())
	op := []unix.Sembuf{{SemNum: 0, SemOp: -1, SemFlg: 0}}

	err := unix.Semtimedop(s.id, op, &ts)
	if err == unix.EAGAIN {
		return ErrTimeout
	}
	return err
}
