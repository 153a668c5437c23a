package onetoone

import (
	"fmt"
	"os"
	"testing"
)

func TestIdentifierFormat(t *testing.T) {
	id := identifier(42)
	want := fmt.Sprintf("pid:%d/fd:42", os.Getpid())
	if id != want {
		t.Fatalf("identifier(42) = %q, want %q", id, want)
	}
}

