package wire

import (
	"bytes"
	"testing"
)

func TestSendReceiveBlobRoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte{0xAB}, 1024)

	var buf bytes.Buffer
	if err := SendBlob(&buf, body); err != nil {
		t.Fatalf("SendBlob: %v", err)
	}

	declared, received, err := ReceiveBlob(&buf, func(n int) []byte { return make([]byte, n) })
	if err != nil {
		t.Fatalf("ReceiveBlob: %v", err)
	}
	if declared != uint32(len(body)) {
		t.Fatalf("declared = %d, want %d", declared, len(body))
	}
	if received != declared {
		t.Fatalf("received = %d, want %d", received, declared)
	}
}

func TestReceiveBlobLargerThanMaxChunk(t *testing.T) {
	body := bytes.Repeat([]byte{0x01}, MaxChunk+17)

	var buf bytes.Buffer
	if err := SendBlob(&buf, body); err != nil {
		t.Fatalf("SendBlob: %v", err)
	}

	var totalReceived int
	_, received, err := ReceiveBlob(&buf, func(n int) []byte {
		totalReceived += n
		return make([]byte, n)
	})
	if err != nil {
		t.Fatalf("ReceiveBlob: %v", err)
	}
	if received != uint32(len(body)) {
		t.Fatalf("received = %d, want %d", received, len(body))
	}
}

func TestReceiveBlobTruncation(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteUint32(&buf, 100); err != nil {
		t.Fatalf("WriteUint32: %v", err)
	}
	buf.Write(bytes.Repeat([]byte{0x02}, 50)) // peer closes after 50 of 100 bytes

	declared, received, err := ReceiveBlob(&buf, func(n int) []byte { return make([]byte, n) })
	if err == nil {
		t.Fatal("expected an error on truncated body")
	}
	if declared != 100 {
		t.Fatalf("declared = %d, want 100", declared)
	}
	if received != 50 {
		t.Fatalf("received = %d, want 50", received)
	}
}

func TestWriteReadUint32RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteUint32(&buf, 0xDEADBEEF); err != nil {
		t.Fatalf("WriteUint32: %v", err)
	}
	v, err := ReadUint32(&buf)
	if err != nil {
		t.Fatalf("ReadUint32: %v", err)
	}
	if v != 0xDEADBEEF {
		t.Fatalf("v = %#x, want 0xDEADBEEF", v)
	}
}
