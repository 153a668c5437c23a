package logrecord

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	start := time.Now()
	end := start.Add(10 * time.Millisecond)
	rec := Record{
		Start: start, Identifier: "pid:1/fd:4", PeerIP: "127.0.0.1", PeerPort: 5000,
		Bytes: 42, End: end, Elapsed: end.Sub(start), HighRes: end.Sub(start),
	}
	if err := w.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Close must be idempotent.
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open written file: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (header + record)", len(rows))
	}
	for i, col := range Header {
		if rows[0][i] != col {
			t.Fatalf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}
	if rows[1][1] != "pid:1/fd:4" {
		t.Fatalf("Identifier column = %q", rows[1][1])
	}
	if rows[1][4] != "42" {
		t.Fatalf("Bytes column = %q, want 42", rows[1][4])
	}
}

func TestOpenAppendDoesNotRewriteHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now := time.Now()
	if err := w.Append(Record{Start: now, End: now, Identifier: "parent"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	a, err := OpenAppend(path)
	if err != nil {
		t.Fatalf("OpenAppend: %v", err)
	}
	if err := a.Append(Record{Start: now, End: now, Identifier: "child"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open written file: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3 (header + parent + child)", len(rows))
	}
	if rows[1][1] != "parent" || rows[2][1] != "child" {
		t.Fatalf("unexpected identifiers: %v", rows)
	}
}

func TestRecordElapsedNonNegative(t *testing.T) {
	start := time.Now()
	end := start.Add(5 * time.Millisecond)
	r := Record{Start: start, End: end, Elapsed: end.Sub(start), HighRes: end.Sub(start)}
	if r.Elapsed < 0 {
		t.Fatalf("Elapsed = %v, want >= 0", r.Elapsed)
	}
	if !r.End.After(r.Start) {
		t.Fatalf("End %v should be after Start %v", r.End, r.Start)
	}
}
