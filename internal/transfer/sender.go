package transfer

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"lanbeam/internal/apperr"
	"lanbeam/internal/protocol"

	"github.com/quic-go/quic-go"
	"github.com/schollz/progressbar/v3"
)

const (
	dialTimeout     = 5 * time.Second
	ackTimeout      = 10 * time.Second
	senderChunkSize = 4 * 1024
)

// Sender pushes files to a transfer server over one persistent
// connection. It speaks the same wire protocol the server receives:
// FILE_INFO, a ready acknowledgment, then the raw file body.
type Sender struct {
	conn  Conn
	addr  string
	dec   *json.Decoder
	qconn quic.Connection

	// Verifier, when set, stamps each FILE_INFO with a checksum.
	Verifier Verifier
	// ShowProgress draws a progress bar on stderr while sending.
	ShowProgress bool
	// OnProgress fires when the upload crosses a 10% boundary.
	OnProgress func(percentage int)
}

// Dial connects to a TCP transfer server.
func Dial(addr string) (*Sender, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, apperr.New(apperr.Transport, "transfer.Dial", "connect to "+addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return newSender(conn, addr, nil), nil
}

// DialQUIC connects to a QUIC transfer server and opens one stream for
// the conversation.
func DialQUIC(ctx context.Context, addr string) (*Sender, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{transferALPN},
	}
	qc, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, apperr.New(apperr.Transport, "transfer.DialQUIC", "connect to "+addr, err)
	}
	stream, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(0, "open stream failed")
		return nil, apperr.New(apperr.Transport, "transfer.DialQUIC", "open stream", err)
	}
	return newSender(streamConn{Stream: stream}, addr, qc), nil
}

func newSender(conn Conn, addr string, qconn quic.Connection) *Sender {
	return &Sender{
		conn:  conn,
		addr:  addr,
		dec:   json.NewDecoder(conn),
		qconn: qconn,
	}
}

// SendFile streams one file and returns the name the server stored it
// under, which may differ from the announced name when it collided.
func (s *Sender) SendFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperr.New(apperr.Storage, "transfer.SendFile", "open "+path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", apperr.New(apperr.Storage, "transfer.SendFile", "stat "+path, err)
	}

	info := protocol.FileInfo{
		Filename: filepath.Base(path),
		Filesize: uint64(st.Size()),
	}
	if s.Verifier != nil {
		sum, err := FileChecksum(s.Verifier, path)
		if err != nil {
			return "", apperr.New(apperr.Storage, "transfer.SendFile", "checksum "+path, err)
		}
		info.Checksum = sum
	}

	data, err := protocol.Encode(protocol.Message{Type: protocol.TypeFileInfo, FileInfo: &info})
	if err != nil {
		return "", err
	}
	if _, err := s.conn.Write(data); err != nil {
		return "", apperr.New(apperr.Transport, "transfer.SendFile", "send file info", err)
	}

	ack, err := s.readAck()
	if err != nil {
		return "", err
	}
	if ack.Status == protocol.StatusError {
		return "", fmt.Errorf("server rejected %s: %s", info.Filename, ack.Reason)
	}
	if ack.Status != protocol.StatusReady {
		return "", fmt.Errorf("unexpected acknowledgment %q", ack.Status)
	}

	var bar *progressbar.ProgressBar
	if s.ShowProgress {
		bar = progressbar.DefaultBytes(st.Size(), info.Filename)
	}

	buf := make([]byte, senderChunkSize)
	var sent uint64
	lastPct := -1
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := s.conn.Write(buf[:n]); werr != nil {
				return "", apperr.New(apperr.Transport, "transfer.SendFile", "send file body", werr)
			}
			sent += uint64(n)
			if bar != nil {
				_ = bar.Add(n)
			}
			if st.Size() > 0 {
				pct := int(sent * 100 / uint64(st.Size()))
				if pct != lastPct && pct%10 == 0 {
					lastPct = pct
					if s.OnProgress != nil {
						s.OnProgress(pct)
					}
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", apperr.New(apperr.Storage, "transfer.SendFile", "read "+path, rerr)
		}
	}

	// The server acknowledges "receiving" once the output file is open
	// and "complete" or "error" when the transfer settles.
	for {
		ack, err := s.readAck()
		if err != nil {
			return "", err
		}
		switch ack.Status {
		case protocol.StatusReceiving:
			continue
		case protocol.StatusComplete:
			return ack.Filename, nil
		case protocol.StatusError:
			return "", fmt.Errorf("transfer of %s failed: %s", info.Filename, ack.Reason)
		default:
			return "", fmt.Errorf("unexpected acknowledgment %q", ack.Status)
		}
	}
}

// readAck reads the next acknowledgment, skipping any typed protocol
// messages (broadcasts) that arrive interleaved on the same stream.
func (s *Sender) readAck() (protocol.Ack, error) {
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(ackTimeout))
		var wire struct {
			Status   string `json:"status"`
			Filename string `json:"filename"`
			Reason   string `json:"reason"`
			Type     string `json:"type"`
		}
		if err := s.dec.Decode(&wire); err != nil {
			return protocol.Ack{}, apperr.New(apperr.Transport, "transfer.readAck", "read acknowledgment", err)
		}
		if wire.Status == "" {
			if wire.Type != "" {
				continue
			}
			return protocol.Ack{}, apperr.New(apperr.Protocol, "transfer.readAck", "acknowledgment has no status", nil)
		}
		return protocol.Ack{Status: wire.Status, Filename: wire.Filename, Reason: wire.Reason}, nil
	}
}

// Disconnect announces an orderly teardown and closes the connection.
func (s *Sender) Disconnect() {
	if data, err := protocol.Encode(protocol.Message{
		Type:       protocol.TypeDisconnect,
		Disconnect: &protocol.Disconnect{Reason: "client_finished"},
	}); err == nil {
		_, _ = s.conn.Write(data)
	}
	_ = s.conn.Close()
	if s.qconn != nil {
		_ = s.qconn.CloseWithError(0, "done")
	}
}
