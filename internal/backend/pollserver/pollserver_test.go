package pollserver

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"scalable-server/internal/core"
	"scalable-server/internal/logger"
	"scalable-server/internal/wire"
)

// freePort asks the OS for an ephemeral port via the standard library, then
// releases it immediately so the raw-socket Initialize below can rebind it.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestPollServerEchoesOneBlob(t *testing.T) {
	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: freePort(t)}
	log := logger.New(&bytes.Buffer{}, logrus.ErrorLevel)
	o := core.NewObject(addr, log, nil, "poll-server", "")

	s := &State{}
	if _, err := s.Initialize(o); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer s.Close(o)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(o)
	}()

	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	body := []byte("echo me")
	if err := wire.SendBlob(conn, body); err != nil {
		t.Fatalf("SendBlob: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := wire.ReadUint32(conn)
	if err != nil {
		t.Fatalf("ReadUint32: %v", err)
	}
	if n != uint32(len(body)) {
		t.Fatalf("echoed count = %d, want %d", n, len(body))
	}

	if _, err := s.Close(o); err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-done
}
