// Package logrecord implements the one-CSV-row-per-measurement log format
// shared by all three server back-ends and the worker client, using
// encoding/csv for fixed-field tabular text output.
package logrecord

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"
)

// Header is written exactly once when a log sink is opened.
var Header = []string{
	"StartTimestamp", "Identifier", "PeerIP", "PeerPort",
	"BytesTransferred", "EndTimestamp", "ElapsedSeconds", "ElapsedHighRes",
}

// Record is one measurement row. Identifier is the thread/process id plus
// fd, formatted as the caller sees fit (e.g. "pid:7421/fd:9").
type Record struct {
	Start      time.Time
	Identifier string
	PeerIP     string
	PeerPort   int
	Bytes      uint32
	End        time.Time
	Elapsed    time.Duration
	HighRes    time.Duration
}

func (r Record) row() []string {
	return []string{
		strconv.FormatInt(r.Start.Unix(), 10),
		r.Identifier,
		r.PeerIP,
		strconv.Itoa(r.PeerPort),
		strconv.FormatUint(uint64(r.Bytes), 10),
		strconv.FormatInt(r.End.Unix(), 10),
		fmt.Sprintf("%.6f", r.Elapsed.Seconds()),
		fmt.Sprintf("%.9f", r.HighRes.Seconds()),
	}
}

// Writer serializes CSV rows behind a mutex. Multiple goroutines or, in the
// worker-pool back-end's case, a semaphore shared across processes
// (internal/ipc/sysvsem.Semaphore satisfies the same Lock/Unlock-shaped
// contract via its Wait/Post pair) may append records through it.
type Writer struct {
	mu  sync.Mutex
	w   *csv.Writer
	out io.Closer
}

// Open truncates (or creates) path, writes the CSV header once, and returns
// a Writer ready for concurrent appends.
func Open(path string) (*Writer, error) {
	f, err := os.Create(path) //nolint:gosec
	if err != nil {
		return nil, err
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(Header); err != nil {
		f.Close()
		return nil, err
	}
	cw.Flush()

	return &Writer{w: cw, out: f}, nil
}

// OpenAppend opens an existing log sink in append mode, without rewriting
// the header. Used by the worker-pool back-end's re-exec'd children, which
// share the parent's log file but must not truncate it on their own open.
func OpenAppend(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, err
	}
	return &Writer{w: csv.NewWriter(f), out: f}, nil
}

// Append writes one record and flushes, so a crash mid-run loses at most
// the record currently being written.
func (l *Writer) Append(r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.w.Write(r.row()); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

// Close flushes and closes the underlying file. Safe to call more than once.
func (l *Writer) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return nil
	}
	l.w.Flush()
	err := l.out.Close()
	l.out = nil
	return err
}
