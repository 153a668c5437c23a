package host

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"scalable-server/internal/backend"
	"scalable-server/internal/core"
	"scalable-server/internal/logger"
)

type scripted struct {
	initErr  error
	runErr   error
	closeN   int
}

func (s *scripted) Initialize(o *core.Object) (core.LifecycleState, error) {
	if s.initErr != nil {
		return core.Error, s.initErr
	}
	return core.Run, nil
}

func (s *scripted) Run(o *core.Object) (core.LifecycleState, error) {
	if s.runErr != nil {
		return core.Error, s.runErr
	}
	return core.Close, nil
}

func (s *scripted) Close(o *core.Object) (core.LifecycleState, error) {
	s.closeN++
	return core.Exit, nil
}

func newTestObject() *core.Object {
	log := logger.New(&bytes.Buffer{}, logrus.InfoLevel)
	return core.NewObject(nil, log, nil, "scripted", "")
}

func TestDriveHappyPath(t *testing.T) {
	b := &scripted{}
	failed := Drive(newTestObject(), b)
	if failed {
		t.Fatal("Drive reported failure on a clean run")
	}
	if b.closeN != 1 {
		t.Fatalf("Close called %d times, want 1", b.closeN)
	}
}

func TestDriveInitializeFailureStillCloses(t *testing.T) {
	b := &scripted{initErr: errors.New("boom")}
	failed := Drive(newTestObject(), b)
	if !failed {
		t.Fatal("Drive should report failure when Initialize errors")
	}
	if b.closeN != 1 {
		t.Fatalf("Close called %d times, want 1", b.closeN)
	}
}

func TestDriveRunFailureStillCloses(t *testing.T) {
	b := &scripted{runErr: errors.New("boom")}
	failed := Drive(newTestObject(), b)
	if !failed {
		t.Fatal("Drive should report failure when Run errors")
	}
	if b.closeN != 1 {
		t.Fatalf("Close called %d times, want 1", b.closeN)
	}
}

var _ backend.State = (*scripted)(nil)
