package sysvsem

import (
	"math/rand"
	"testing"
	"time"
)

func newToken() int32 {
	return int32(rand.New(rand.NewSource(time.Now().UnixNano())).Int31())
}

func TestOpenWaitPostUnlink(t *testing.T) {
	token := newToken()

	s, err := Open(token, 1)
	if err != nil {
		t.Skipf("System V semaphores unavailable in this sandbox: %v", err)
	}
	defer s.Unlink()

	if err := s.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	done := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		if err := s.Post(); err != nil {
			t.Errorf("Post: %v", err)
		}
		close(done)
	}()

	if err := s.Wait(); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	<-done

	if err := s.Unlink(); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	// Unlinking twice must tolerate EINVAL.
	if err := s.Unlink(); err != nil {
		t.Fatalf("second Unlink: %v", err)
	}
}

func TestWaitTimeoutExpires(t *testing.T) {
	token := newToken()

	s, err := Open(token, 0)
	if err != nil {
		t.Skipf("System V semaphores unavailable in this sandbox: %v", err)
	}
	defer s.Unlink()

	if err := s.WaitTimeout(50 * time.Millisecond); err != ErrTimeout {
		t.Fatalf("WaitTimeout = %v, want ErrTimeout", err)
	}
}
