// Package sysvsem implements named semaphores shared across a fork boundary
// using System V semaphore sets via golang.org/x/sys/unix, since Go has no
// cgo-free binding for POSIX sem_open. A System V semaphore set is
// kernel-global and keyed by an integer token, which survives this
// repository's self-re-exec "fork" (see internal/backend/workerpool)
// exactly as a named POSIX semaphore would survive a real fork(2).
package sysvsem

import (
	"fmt"

	"scalable-server/internal/xerr"

	"golang.org/x/sys/unix"
)

// Semaphore is a single-member System V semaphore set, giving sem_wait/
// sem_post/sem_close/sem_unlink vocabulary over the SysV primitive.
type Semaphore struct {
	id int
}

// Open creates (or attaches to) the semaphore set keyed by token and, if
// this process created it, initializes its single member to initial.
func Open(token int32, initial uint16) (*Semaphore, error) {
	key := int(token)

	id, err := unix.Semget(key, 1, unix.IPC_CREAT|unix.IPC_EXCL|0o600)
	created := true
	if err != nil {
		// Another process (or a prior run) already created this set;
		// attach to it instead.
		id, err = unix.Semget(key, 1, 0o600)
		created = false
		if err != nil {
			return nil, xerr.Wrap(xerr.EIPC, fmt.Sprintf("sysvsem: semget %d", token), err)
		}
	}

	s := &Semaphore{id: id}
	if created {
		if _, err := unix.SemctlInt(id, 0, unix.SETVAL, int(initial)); err != nil {
			return nil, xerr.Wrap(xerr.EIPC, fmt.Sprintf("sysvsem: setval %d", token), err)
		}
	}
	return s, nil
}

// Wait is sem_wait: blocks until the semaphore's value is positive, then
// decrements it. A signal delivered during the wait surfaces as EINTR,
// which is returned to the caller.
func (s *Semaphore) Wait() error {
	op := []unix.Sembuf{{SemNum: 0, SemOp: -1, SemFlg: 0}}
	return unix.Semop(s.id, op)
}

// Post is sem_post: increments the semaphore's value, waking one waiter.
func (s *Semaphore) Post() error {
	op := []unix.Sembuf{{SemNum: 0, SemOp: 1, SemFlg: 0}}
	return unix.Semop(s.id, op)
}

// Close is sem_close in name only; System V semaphore sets have no
// per-process handle to release, so this is a no-op kept for symmetry with
// the Wait/Post/Unlink vocabulary.
func (s *Semaphore) Close() error { return nil }

// Unlink is sem_unlink: removes the semaphore set from the kernel. Safe to
// call once teardown has closed every process using it; an already-removed
// set surfaces EINVAL, which callers ignore.
func (s *Semaphore) Unlink() error {
	_, err := unix.SemctlInt(s.id, 0, unix.IPC_RMID, 0)
	if err == unix.EINVAL {
		return nil
	}
	return err
}
