package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"lanbeam/internal/apperr"
	"lanbeam/internal/protocol"
	"lanbeam/internal/store"

	"github.com/google/uuid"
)

// State is the listener lifecycle.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "invalid"
	}
}

const (
	// acceptTimeout bounds each accept wait so Stop is observed within
	// one interval.
	acceptTimeout = 1 * time.Second

	// stopTimeout bounds how long Stop waits for handlers to retire.
	// Handlers still running past it are abandoned; a stuck peer must
	// never keep the process from exiting.
	stopTimeout = 3 * time.Second
)

// Options configures a Listener.
type Options struct {
	Port      int
	OutDir    string
	Transport string // "tcp" (default) or "quic"
	Logger    *slog.Logger
	Verifier  Verifier

	// OnFileReceived fires after a file is fully stored.
	OnFileReceived func(filename string, totalBytes uint64)
	// OnProgress fires when a transfer crosses a 10% boundary.
	OnProgress func(peer string, percentage int)
}

// Listener accepts transfer connections and runs one session goroutine
// per connection. Sessions register themselves in the shared registry for
// the lifetime of their socket.
type Listener struct {
	opts  Options
	log   *slog.Logger
	reg   *store.Registry
	state atomic.Int32

	ln   *net.TCPListener
	port int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	quic *quicServer
}

func NewListener(opts Options) *Listener {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OutDir == "" {
		opts.OutDir = "."
	}
	return &Listener{
		opts: opts,
		log:  opts.Logger,
		reg:  store.NewRegistry(),
	}
}

// Start binds the transfer port and launches the accept loop. A port that
// cannot be bound fails with a bind error; nothing is retried. Start on a
// listener that is not stopped is an error.
func (l *Listener) Start(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("listener is %s, not stopped", l.State())
	}
	l.ctx, l.cancel = context.WithCancel(ctx)

	var err error
	if l.opts.Transport == "quic" {
		err = l.startQUIC()
	} else {
		err = l.startTCP()
	}
	if err != nil {
		l.cancel()
		l.state.Store(int32(StateStopped))
		return err
	}

	l.state.Store(int32(StateRunning))
	return nil
}

func (l *Listener) startTCP() error {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{Port: l.opts.Port})
	if err != nil {
		return apperr.New(apperr.Bind, "transfer.Start", fmt.Sprintf("bind port %d", l.opts.Port), err)
	}
	l.ln = ln
	l.port = ln.Addr().(*net.TCPAddr).Port
	l.log.Info("listening for transfers", "addr", ln.Addr().String())

	l.wg.Add(1)
	go l.acceptLoop()
	return nil
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	for {
		if l.ctx.Err() != nil {
			return
		}
		_ = l.ln.SetDeadline(time.Now().Add(acceptTimeout))
		conn, err := l.ln.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if l.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Warn("accept failed", "err", err)
			continue
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			// Small control messages should not wait for coalescing.
			_ = tc.SetNoDelay(true)
		}
		l.startSession(conn, conn.RemoteAddr().String())
	}
}

// startSession registers a new session and spawns its receive loop.
func (l *Listener) startSession(conn Conn, addr string) {
	ip, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)

	rec := &store.Session{
		ID:          uuid.NewString(),
		Conn:        conn,
		IP:          ip,
		Port:        port,
		Active:      true,
		ConnectedAt: time.Now(),
	}
	l.reg.Insert(rec)
	l.log.Info("connection accepted", "peer", addr, "session", rec.ID)

	h := &session{
		id:             rec.ID,
		conn:           conn,
		addr:           addr,
		reg:            l.reg,
		log:            l.log,
		outDir:         l.opts.OutDir,
		verifier:       l.opts.Verifier,
		onFileReceived: l.opts.OnFileReceived,
		onProgress:     l.opts.OnProgress,
		ctx:            l.ctx,
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		h.run()
	}()
}

// Stop tears the listener down: the accept wait is unblocked, every live
// session socket is closed out from under its read, and handlers get a
// bounded window to retire. Stop when not running is a no-op.
func (l *Listener) Stop() {
	for !l.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		// A concurrent Start may still be binding. Wait for it to
		// settle so the stop request cannot be lost in that window.
		if State(l.state.Load()) != StateStarting {
			return
		}
		time.Sleep(time.Millisecond)
	}
	l.log.Info("stopping listener")
	l.cancel()
	if l.ln != nil {
		_ = l.ln.Close()
	}
	if l.quic != nil {
		l.quic.close()
	}

	bye, _ := protocol.Encode(protocol.Message{
		Type:       protocol.TypeDisconnect,
		Disconnect: &protocol.Disconnect{Reason: "server_shutdown"},
	})
	l.reg.ForEachActive(func(s store.Session) {
		if s.Conn == nil {
			return
		}
		_, _ = s.Conn.Write(bye)
		_ = s.Conn.Close()
	})

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		l.log.Warn("timed out waiting for sessions, abandoning handlers")
	}

	l.state.Store(int32(StateStopped))
	l.log.Info("listener stopped")
}

// State reports the lifecycle state.
func (l *Listener) State() State {
	return State(l.state.Load())
}

// Port reports the bound port, useful when Options.Port was 0.
func (l *Listener) Port() int {
	return l.port
}

// Sessions returns a point-in-time copy of the active session records.
func (l *Listener) Sessions() []store.Session {
	return l.reg.Snapshot()
}

// Broadcast sends a message to every active session.
func (l *Listener) Broadcast(msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		l.log.Warn("broadcast encode failed", "err", err)
		return
	}
	l.reg.ForEachActive(func(s store.Session) {
		if s.Conn == nil {
			return
		}
		if _, err := s.Conn.Write(data); err != nil {
			l.log.Warn("broadcast write failed", "peer", s.IP, "err", err)
		}
	})
}

// Disconnect tells one session to go away and closes its socket, which
// unblocks the handler; the handler deregisters itself. Returns false if
// the session is unknown.
func (l *Listener) Disconnect(id string) bool {
	s, ok := l.reg.Get(id)
	if !ok {
		return false
	}
	if s.Conn != nil {
		if data, err := protocol.Encode(protocol.Message{
			Type:       protocol.TypeDisconnect,
			Disconnect: &protocol.Disconnect{Reason: "server_disconnect"},
		}); err == nil {
			_, _ = s.Conn.Write(data)
		}
		_ = s.Conn.Close()
	}
	return true
}
