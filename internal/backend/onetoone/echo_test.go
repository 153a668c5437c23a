package onetoone

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

func TestOneToOneEchoesMultipleBlobsOnOneConnection(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	addr := l.Addr().(*net.TCPAddr)
	l.Close()

	log := logger.New(&bytes.Buffer{}, logrus.ErrorLevel)
	o := core.NewObject(addr, log, nil, "one-to-one", "")

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

	for _, body := range [][]byte{[]byte("first"), []byte("second and longer")} {
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
	}
	conn.Close()

	if _, err := s.Close(o); err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-done
}
