// Package concurrency bounds in-flight work and renders terminal progress:
// a weighted semaphore capping concurrent connection attempts, and an
// optional github.com/vbauerster/mpb/v8 progress bar for operator-facing
// output.
package concurrency

import (
	"context"
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/semaphore"
)

// Limiter caps concurrent work at size and optionally renders progress bars
// through a shared mpb.Progress container.
type Limiter struct {
	sem *semaphore.Weighted
	mp  *mpb.Progress
}

// New builds a Limiter allowing up to size concurrent acquisitions. When
// useMPB is true, bars created via Bar render to out; out defaults to
// os.Stdout via mpb's own default when nil.
func New(size int64, useMPB bool, out io.Writer) *Limiter {
	l := &Limiter{sem: semaphore.NewWeighted(size)}
	if useMPB {
		opts := []mpb.ContainerOption{}
		if out != nil {
			opts = append(opts, mpb.WithOutput(out))
		}
		l.mp = mpb.New(opts...)
	}
	return l
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// Release returns a slot to the pool.
func (l *Limiter) Release() {
	l.sem.Release(1)
}

// Bar creates a countable progress bar (e.g. "workers connected", "seconds
// remaining") with the given name and total. Returns nil when this Limiter
// was built without mpb.
func (l *Limiter) Bar(name string, total int64) *mpb.Bar {
	if l.mp == nil {
		return nil
	}
	return l.mp.AddBar(total,
		mpb.PrependDecorators(decor.Name(name)),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)
}

// Wait blocks until every bar registered on this Limiter's progress
// container has completed. No-op when mpb was not enabled.
func (l *Limiter) Wait() {
	if l.mp != nil {
		l.mp.Wait()
	}
}
