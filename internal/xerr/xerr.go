// Package xerr implements a small coded error type: a numeric code, a
// message, an optional parent chain, and a call-site trace.
package xerr

import (
	"fmt"
	"runtime"
	"strings"
)

// Code is a small numeric error classification, analogous to an HTTP status
// code but scoped to this repository's domain.
type Code uint16

const (
	Unknown Code = iota
	EConfig
	EListen
	EAccept
	EConnect
	EProtocol
	EIPC
	EChild
	ETimeout
	EClosed
)

var codeNames = map[Code]string{
	Unknown:   "unknown",
	EConfig:   "configuration",
	EListen:   "listen",
	EAccept:   "accept",
	EConnect:  "connect",
	EProtocol: "protocol",
	EIPC:      "ipc",
	EChild:    "child-process",
	ETimeout:  "timeout",
	EClosed:   "closed",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "unknown"
}

// Error is a coded error with an optional parent chain and call-site trace.
type Error struct {
	code   Code
	msg    string
	parent error
	frame  runtime.Frame
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.parent != nil {
		return fmt.Sprintf("[%s] %s: %s", e.code, e.msg, e.parent.Error())
	}
	return fmt.Sprintf("[%s] %s", e.code, e.msg)
}

// Unwrap allows errors.Is/errors.As to traverse into the parent error.
func (e *Error) Unwrap() error { return e.parent }

// Code returns the numeric classification of this error.
func (e *Error) Code() Code { return e.code }

// Trace returns "file#line" for the call site that created this error.
func (e *Error) Trace() string {
	if e.frame.File == "" {
		return ""
	}
	return fmt.Sprintf("%s#%d", trimPath(e.frame.File), e.frame.Line)
}

func trimPath(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		if j := strings.LastIndex(p[:i], "/"); j >= 0 {
			return p[j+1:]
		}
	}
	return p
}

func trace(skip int) runtime.Frame {
	pc := make([]uintptr, 1)
	if n := runtime.Callers(skip+2, pc); n == 0 {
		return runtime.Frame{}
	}
	frame, _ := runtime.CallersFrames(pc).Next()
	return frame
}

// New builds a coded error with no parent.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg, frame: trace(1)}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...), frame: trace(1)}
}

// Wrap attaches a parent error to a new coded error. Returns nil if err is nil.
func Wrap(code Code, msg string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: msg, parent: err, frame: trace(1)}
}

// Is reports whether target shares this error's code, so errors.Is can
// match on classification without comparing messages or parent chains.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}
