// Package wire implements two wire formats: the client-to-server
// length-prefixed blob protocol, and the controller-to-worker-client
// control protocol (opcode + payload record). All integers are big-endian.
package wire

import (
	"encoding/binary"
	"io"

	"scalable-server/internal/xerr"
)

// MaxChunk bounds a single body read so ReceiveBlob never allocates more
// than this many bytes for one chunk, regardless of the declared length.
const MaxChunk = 1 << 20

// writeFull writes b to completion, retrying on short writes. net.Conn's
// Write already blocks to completion or error, but this keeps the wire
// codec correct for any io.Writer, not only sockets.
func writeFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// WriteUint32 writes a 4-byte big-endian header, to completion.
func WriteUint32(w io.Writer, v uint32) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], v)
	return writeFull(w, hdr[:])
}

// ReadUint32 reads a 4-byte big-endian header, waiting until fully received.
func ReadUint32(r io.Reader) (uint32, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(hdr[:]), nil
}

// ReceiveBlob reads a 4-byte big-endian length L followed by L bytes,
// copying chunks of at most MaxChunk bytes into buffers drawn from get.
// received never exceeds declared: the remainder is checked after every
// chunk rather than inferred from a possibly negative total.
func ReceiveBlob(r io.Reader, get func(n int) []byte) (declared uint32, received uint32, err error) {
	declared, err = ReadUint32(r)
	if err != nil {
		return 0, 0, err
	}

	remaining := int64(declared)
	for remaining > 0 {
		chunk := remaining
		if chunk > MaxChunk {
			chunk = MaxChunk
		}

		buf := get(int(chunk))
		n, rerr := io.ReadFull(r, buf[:chunk])
		received += uint32(n)
		remaining -= int64(n)

		if remaining < 0 {
			return declared, received, xerr.New(xerr.EProtocol, "wire: received more than declared length")
		}
		if rerr != nil {
			return declared, received, rerr
		}
	}

	return declared, received, nil
}

// SendBlob writes a length-prefixed blob in one call, for clients that hold
// the whole payload in memory.
func SendBlob(w io.Writer, body []byte) error {
	if err := WriteUint32(w, uint32(len(body))); err != nil {
		return err
	}
	return writeFull(w, body)
}

// SendCount writes the 4-byte big-endian received-byte-count reply.
func SendCount(w io.Writer, n uint32) error {
	return WriteUint32(w, n)
}
