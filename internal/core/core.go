// Package core defines the Object aggregate and the lifecycle states shared
// by all three server back-ends: initialize, run, close, on a
// library-selected back-end instead of a fixed handler. The state machine
// that drives them is host.Drive.
package core

import (
	"net"

	"scalable-server/internal/bufferpool"
	"scalable-server/internal/logger"
	"scalable-server/internal/logrecord"
	"scalable-server/internal/metrics"
)

// LifecycleState is one of the five states the host shell drives through.
type LifecycleState int

const (
	Initialize LifecycleState = iota
	Run
	Close
	Error
	Exit
)

func (s LifecycleState) String() string {
	switch s {
	case Initialize:
		return "INITIALIZE"
	case Run:
		return "RUN"
	case Close:
		return "CLOSE"
	case Error:
		return "ERROR"
	case Exit:
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}

// Object is the CoreObject: the per-process aggregate every back-end
// consumes. It owns the log sink and the buffer pool; it does not own the
// back-end-specific state, which the host holds separately.
type Object struct {
	ListenAddr *net.TCPAddr

	Log  *logger.Logger
	Rec  *logrecord.Writer
	Pool *bufferpool.Pool

	// Library is the --library/-l value that selected the running back-end.
	Library string

	// LogPath is the CSV log sink's path. The worker-pool back-end's parent
	// passes it to its re-exec'd children so they can append to the same
	// sink instead of each truncating it on open.
	LogPath string

	// Metrics is nil unless the host shell was started with an admin
	// listener address; back-ends must nil-check before incrementing.
	Metrics *metrics.Registry
}

// NewObject constructs the CoreObject. rec may be nil (the package tests
// pass nil); the back-ends then write no CSV records.
func NewObject(addr *net.TCPAddr, log *logger.Logger, rec *logrecord.Writer, library, logPath string) *Object {
	return &Object{
		ListenAddr: addr,
		Log:        log,
		Rec:        rec,
		Pool:       bufferpool.New(1 << 20),
		Library:    library,
		LogPath:    logPath,
	}
}

// LogPathHint returns the CSV log sink's path for handoff to a child
// process that needs to append to the same sink.
func (o *Object) LogPathHint() string { return o.LogPath }
