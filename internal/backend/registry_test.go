package backend

import (
	"scalable-server/internal/core"
	"testing"
)

type fakeState struct{ closed bool }

func (f *fakeState) Initialize(o *core.Object) (core.LifecycleState, error) {
	return core.Run, nil
}
func (f *fakeState) Run(o *core.Object) (core.LifecycleState, error) {
	return core.Close, nil
}
func (f *fakeState) Close(o *core.Object) (core.LifecycleState, error) {
	f.closed = true
	return core.Exit, nil
}

func TestRegisterAndNew(t *testing.T) {
	Register("fake-backend-test", func() State { return &fakeState{} })

	s, err := New("fake-backend-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := s.(*fakeState); !ok {
		t.Fatalf("New returned %T, want *fakeState", s)
	}

	names := Names()
	found := false
	for _, n := range names {
		if n == "fake-backend-test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Names() = %v, missing fake-backend-test", names)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New("no-such-backend"); err == nil {
		t.Fatal("expected an error for an unregistered backend name")
	}
}
