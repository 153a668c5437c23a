package wire

import (
	"bytes"
	"testing"
)

func TestOpcodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOpcode(&buf, OpStart); err != nil {
		t.Fatalf("WriteOpcode: %v", err)
	}
	op, err := ReadOpcode(&buf)
	if err != nil {
		t.Fatalf("ReadOpcode: %v", err)
	}
	if op != OpStart {
		t.Fatalf("op = %d, want OpStart", op)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	want := Payload{ServerPort: 5000, ServerIP: "192.0.2.1", Data: []byte("hello world")}

	var buf bytes.Buffer
	if err := WritePayload(&buf, want); err != nil {
		t.Fatalf("WritePayload: %v", err)
	}

	got, err := ReadPayload(&buf)
	if err != nil {
		t.Fatalf("ReadPayload: %v", err)
	}
	if got.ServerPort != want.ServerPort || got.ServerIP != want.ServerIP || !bytes.Equal(got.Data, want.Data) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestReadOpcodeUnknown(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOpcode(&buf, Opcode(99)); err != nil {
		t.Fatalf("WriteOpcode: %v", err)
	}
	op, err := ReadOpcode(&buf)
	if err != nil {
		t.Fatalf("ReadOpcode: %v", err)
	}
	if op != 99 {
		t.Fatalf("op = %d, want 99", op)
	}
	if _, ok := interface{}(ErrUnknownOpcode(op)).(error); !ok {
		t.Fatal("ErrUnknownOpcode should implement error")
	}
}
