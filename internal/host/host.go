// Package host drives the shared lifecycle state machine: call the
// selected back-end's Initialize, Run, and Close in sequence, letting each
// step's returned state decide what happens next.
package host

import (
	"scalable-server/internal/backend"
	"scalable-server/internal/core"
)

// Drive runs the lifecycle state machine to completion and returns whether
// the process should report a failure exit status. The error path invokes
// Close exactly once regardless of which step produced the error.
func Drive(o *core.Object, b backend.State) (failed bool) {
	state := core.Initialize

	for {
		switch state {
		case core.Initialize:
			next, err := b.Initialize(o)
			if err != nil {
				o.Log.Errorf("initialize: %v", err)
				failed = true
				state = core.Error
				continue
			}
			state = next

		case core.Run:
			next, err := b.Run(o)
			if err != nil {
				o.Log.Errorf("run: %v", err)
				failed = true
				state = core.Error
				continue
			}
			state = next

		case core.Error:
			if _, err := b.Close(o); err != nil {
				o.Log.Errorf("close (after error): %v", err)
			}
			state = core.Exit

		case core.Close:
			if _, err := b.Close(o); err != nil {
				o.Log.Errorf("close: %v", err)
				failed = true
			}
			state = core.Exit

		case core.Exit:
			return failed
		}
	}
}
