package apperr

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := New(Storage, "transfer.receiveFile", "create out.bin", io.ErrClosedPipe)
	msg := err.Error()
	for _, want := range []string{"transfer.receiveFile", "storage", "create out.bin", io.ErrClosedPipe.Error()} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	err := New(Transport, "transfer.Dial", "connect", io.EOF)
	if !errors.Is(err, io.EOF) {
		t.Error("wrapped cause not reachable through errors.Is")
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(Bind, "transfer.Start", "bind port 5000", nil))
	if !IsKind(err, Bind) {
		t.Error("IsKind() = false for a wrapped bind error")
	}
	if IsKind(err, Transport) {
		t.Error("IsKind() matched the wrong kind")
	}
	if IsKind(io.EOF, Bind) {
		t.Error("IsKind() matched a plain error")
	}
}
