package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lanbeam/internal/protocol"
	"lanbeam/internal/store"
)

// eofTailConn serves a fixed body and reports EOF in the same Read that
// delivers the final bytes, the way a half-closed stream can.
type eofTailConn struct {
	data []byte
	done bool
	acks bytes.Buffer
}

func (c *eofTailConn) Read(p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}
	n := copy(p, c.data)
	c.data = c.data[n:]
	if len(c.data) == 0 {
		c.done = true
		return n, io.EOF
	}
	return n, nil
}

func (c *eofTailConn) Write(p []byte) (int, error)     { return c.acks.Write(p) }
func (c *eofTailConn) Close() error                    { return nil }
func (c *eofTailConn) SetReadDeadline(time.Time) error { return nil }

func TestReceiveFileBodyEndingWithEOF(t *testing.T) {
	dir := t.TempDir()
	conn := &eofTailConn{data: []byte("hello")}

	var (
		gotName  string
		gotBytes uint64
	)
	s := &session{
		id:     "s1",
		conn:   conn,
		addr:   "127.0.0.1:50000",
		reg:    store.NewRegistry(),
		log:    testLogger(),
		outDir: dir,
		ctx:    context.Background(),
		onFileReceived: func(name string, total uint64) {
			gotName, gotBytes = name, total
		},
	}

	if err := s.receiveFile(protocol.FileInfo{Filename: "a.txt", Filesize: 5}, "a.txt"); err != nil {
		t.Fatalf("receiveFile() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("stored file missing after complete body: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("stored contents = %q, want hello", data)
	}
	if gotName != "a.txt" || gotBytes != 5 {
		t.Errorf("OnFileReceived = (%q, %d), want (a.txt, 5)", gotName, gotBytes)
	}

	var statuses []string
	dec := json.NewDecoder(&conn.acks)
	for {
		var ack protocol.Ack
		if err := dec.Decode(&ack); err != nil {
			break
		}
		statuses = append(statuses, ack.Status)
	}
	if len(statuses) == 0 || statuses[len(statuses)-1] != protocol.StatusComplete {
		t.Errorf("ack statuses = %v, want a trailing complete", statuses)
	}
	for _, st := range statuses {
		if st == protocol.StatusError {
			t.Errorf("error ack sent for a complete transfer: %v", statuses)
		}
	}
}

func TestReceiveFileShortBodyWithEOF(t *testing.T) {
	dir := t.TempDir()
	conn := &eofTailConn{data: []byte("hel")}

	s := &session{
		id:     "s1",
		conn:   conn,
		addr:   "127.0.0.1:50000",
		reg:    store.NewRegistry(),
		log:    testLogger(),
		outDir: dir,
		ctx:    context.Background(),
	}

	if err := s.receiveFile(protocol.FileInfo{Filename: "a.txt", Filesize: 5}, "a.txt"); err == nil {
		t.Fatal("receiveFile() succeeded on a short body")
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Error("partial file left on disk")
	}
}
