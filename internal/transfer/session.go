package transfer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"lanbeam/internal/apperr"
	"lanbeam/internal/protocol"
	"lanbeam/internal/store"
)

const (
	// readTimeout bounds every blocking read so a session notices
	// cancellation promptly. Timeouts are not failures.
	readTimeout = 2 * time.Second

	// bodyChunkSize is the read size while streaming a file body.
	bodyChunkSize = 8 * 1024

	// messageBufSize bounds a single control message.
	messageBufSize = 4 * 1024
)

// Conn is the connection a session reads from. Both net.Conn and QUIC
// streams satisfy it.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadDeadline(t time.Time) error
}

// session owns one accepted connection for the duration of its receive
// loop. It is the only writer of the transfer fields of its registry
// record; everything else observes copies through the registry.
type session struct {
	id             string
	conn           Conn
	addr           string
	reg            *store.Registry
	log            *slog.Logger
	outDir         string
	verifier       Verifier
	onFileReceived func(filename string, totalBytes uint64)
	onProgress     func(peer string, percentage int)
	ctx            context.Context
}

// run is the per-connection receive loop. It reads one control message at
// a time and dispatches it; a FILE_INFO message hands off to receiveFile
// and returns here afterwards, so one connection can carry any number of
// transfers. Decode failures are logged and skipped; only transport
// failures or an explicit disconnect end the loop.
func (s *session) run() {
	defer s.teardown()

	buf := make([]byte, messageBufSize)
	for {
		if s.ctx.Err() != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := s.conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, io.EOF) {
				s.log.Info("peer closed connection", "peer", s.addr)
			} else if s.ctx.Err() == nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, syscall.ECONNRESET) {
				s.log.Warn("read failed", "peer", s.addr, "err", err)
			}
			return
		}

		msg, err := protocol.Decode(buf[:n])
		if err != nil {
			s.log.Warn("dropping malformed message", "peer", s.addr, "err", err)
			continue
		}

		switch msg.Type {
		case protocol.TypeFileInfo:
			s.handleFileInfo(*msg.FileInfo)

		case protocol.TypeDisconnect:
			s.log.Info("peer disconnected", "peer", s.addr, "reason", msg.Disconnect.Reason)
			return

		case protocol.TypeError:
			// Clients report orderly teardown through informational
			// error reasons; anything else is worth a warning.
			reason := msg.Error.Reason
			if reason != "client_disconnect" && reason != "client_finished" {
				s.log.Warn("peer reported error", "peer", s.addr, "reason", reason)
			}

		default:
			s.log.Debug("ignoring message", "peer", s.addr, "type", msg.Type)
		}
	}
}

func (s *session) handleFileInfo(info protocol.FileInfo) {
	name, err := sanitizeName(info.Filename)
	if err != nil {
		s.log.Warn("rejecting transfer", "peer", s.addr, "filename", info.Filename, "err", err)
		s.sendAck(protocol.Ack{Status: protocol.StatusError, Reason: "invalid filename"})
		return
	}

	s.reg.Update(s.id, func(sess *store.Session) {
		sess.CurrentFile = name
		sess.BytesReceived = 0
	})
	s.sendAck(protocol.Ack{Status: protocol.StatusReady})

	if err := s.receiveFile(info, name); err != nil {
		s.log.Warn("transfer failed", "peer", s.addr, "file", name, "err", err)
	}
}

// receiveFile streams exactly info.Filesize raw bytes into a fresh output
// file. Every exit path either hands a complete file to the caller or
// closes and deletes the partial output. Errors returned here never end
// the session; a dead socket surfaces on the next loop read.
func (s *session) receiveFile(info protocol.FileInfo, name string) error {
	out, storedName, err := createFile(s.outDir, name)
	if err != nil {
		s.sendAck(protocol.Ack{Status: protocol.StatusError, Reason: "cannot create file"})
		return apperr.New(apperr.Storage, "transfer.receiveFile", "create "+name, err)
	}
	path := filepath.Join(s.outDir, storedName)

	s.log.Info("receiving file", "peer", s.addr, "file", storedName, "bytes", info.Filesize)
	s.sendAck(protocol.Ack{Status: protocol.StatusReceiving})

	buf := make([]byte, bodyChunkSize)
	var total uint64
	lastPct := -1

	for total < info.Filesize {
		if s.ctx.Err() != nil {
			discard(out, path)
			return apperr.New(apperr.Incomplete, "transfer.receiveFile", "shutdown during transfer", s.ctx.Err())
		}

		limit := uint64(bodyChunkSize)
		if remaining := info.Filesize - total; remaining < limit {
			limit = remaining
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := s.conn.Read(buf[:limit])

		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				discard(out, path)
				s.sendAck(protocol.Ack{Status: protocol.StatusError, Reason: "cannot write file"})
				return apperr.New(apperr.Storage, "transfer.receiveFile", "write "+storedName, werr)
			}
			total += uint64(n)
			s.reg.Update(s.id, func(sess *store.Session) {
				sess.BytesReceived = total
			})

			pct := int(total * 100 / info.Filesize)
			if pct != lastPct && pct%10 == 0 {
				lastPct = pct
				s.log.Info("transfer progress", "peer", s.addr, "file", storedName, "percent", pct,
					"received", total, "total", info.Filesize)
				if s.onProgress != nil {
					s.onProgress(s.addr, pct)
				}
			}
		}

		if err != nil {
			if isTimeout(err) {
				continue
			}
			// The last body bytes can arrive in the same read as the
			// peer's close; the transfer is complete, not cut short.
			if total == info.Filesize {
				break
			}
			discard(out, path)
			if errors.Is(err, io.EOF) {
				s.sendAck(protocol.Ack{Status: protocol.StatusError, Reason: "incomplete transfer"})
				return apperr.New(apperr.Incomplete, "transfer.receiveFile",
					"connection closed mid-transfer", err)
			}
			return apperr.New(apperr.Transport, "transfer.receiveFile", "read file body", err)
		}
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		s.sendAck(protocol.Ack{Status: protocol.StatusError, Reason: "cannot write file"})
		return apperr.New(apperr.Storage, "transfer.receiveFile", "close "+storedName, err)
	}

	if s.verifier != nil && info.Checksum != "" {
		sum, err := FileChecksum(s.verifier, path)
		if err != nil || sum != info.Checksum {
			_ = os.Remove(path)
			s.sendAck(protocol.Ack{Status: protocol.StatusError, Reason: "checksum mismatch"})
			return apperr.New(apperr.Storage, "transfer.receiveFile", "verify "+storedName, err)
		}
	}

	s.reg.Update(s.id, func(sess *store.Session) {
		sess.CurrentFile = ""
	})
	s.log.Info("file received", "peer", s.addr, "file", storedName, "bytes", total)
	if s.onFileReceived != nil {
		s.onFileReceived(storedName, total)
	}
	s.sendAck(protocol.Ack{Status: protocol.StatusComplete, Filename: storedName})
	return nil
}

// sendAck writes an acknowledgment best-effort. A failed write is not
// acted on here; if the socket is dead the next loop read ends the session.
func (s *session) sendAck(ack protocol.Ack) {
	data, err := protocol.EncodeAck(ack)
	if err != nil {
		return
	}
	if _, err := s.conn.Write(data); err != nil {
		s.log.Debug("ack write failed", "peer", s.addr, "err", err)
	}
}

func (s *session) teardown() {
	s.reg.Update(s.id, func(sess *store.Session) {
		sess.Active = false
	})
	s.reg.Remove(s.id)
	_ = s.conn.Close()
	s.log.Info("session closed", "peer", s.addr)
}

func discard(out *os.File, path string) {
	_ = out.Close()
	_ = os.Remove(path)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
