package fdpass

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestSendRecvFD(t *testing.T) {
	sockA, sockB, err := NewPair()
	if err != nil {
		t.Fatalf("NewPair: %v", err)
	}
	defer unix.Close(sockA)
	defer unix.Close(sockB)

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer w.Close()
	toSend := int(r.Fd())

	const token = uint32(0xC0FFEE)
	if err := SendFD(sockA, toSend, token); err != nil {
		t.Fatalf("SendFD: %v", err)
	}
	r.Close() // the fd number is duplicated by SCM_RIGHTS, so closing our copy is safe

	got, gotToken, err := RecvFD(sockB)
	if err != nil {
		t.Fatalf("RecvFD: %v", err)
	}
	defer unix.Close(got)

	if gotToken != token {
		t.Fatalf("token = %#x, want %#x", gotToken, token)
	}

	msg := []byte("passed")
	if _, err := w.Write(msg); err != nil {
		t.Fatalf("write to original pipe: %v", err)
	}
	buf := make([]byte, len(msg))
	n, err := unix.Read(got, buf)
	if err != nil {
		t.Fatalf("read from received fd: %v", err)
	}
	if string(buf[:n]) != "passed" {
		t.Fatalf("read %q through received fd, want %q", buf[:n], msg)
	}
}
