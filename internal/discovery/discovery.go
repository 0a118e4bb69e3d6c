package discovery

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sort"
	"sync"
	"syscall"
	"time"

	"lanbeam/internal/apperr"
	"lanbeam/internal/protocol"
)

const readTimeout = 1 * time.Second

// Device is a transfer server found on the local network.
type Device struct {
	IP   string
	Name string
	Port int
}

// Responder answers UDP discovery probes with this host's transfer
// endpoint. It runs next to the transfer listener.
type Responder struct {
	discoveryPort int
	transferPort  int
	name          string
	log           *slog.Logger
	conn          *net.UDPConn
	wg            sync.WaitGroup
}

func NewResponder(discoveryPort, transferPort int, name string, log *slog.Logger) *Responder {
	if log == nil {
		log = slog.Default()
	}
	return &Responder{
		discoveryPort: discoveryPort,
		transferPort:  transferPort,
		name:          name,
		log:           log,
	}
}

// Start binds the discovery port and answers probes until the context is
// canceled or Close is called.
func (r *Responder) Start(ctx context.Context) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: r.discoveryPort})
	if err != nil {
		return apperr.New(apperr.Bind, "discovery.Responder", "bind discovery port", err)
	}
	r.conn = conn
	r.log.Info("answering discovery probes", "addr", conn.LocalAddr().String())

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.serve(ctx)
	}()
	return nil
}

func (r *Responder) serve(ctx context.Context) {
	buf := make([]byte, 1024)
	for {
		if ctx.Err() != nil {
			return
		}
		_ = r.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, sender, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			r.log.Warn("discovery read failed", "err", err)
			continue
		}

		msg, err := protocol.Decode(buf[:n])
		if err != nil || msg.Type != protocol.TypeDiscovery {
			continue
		}
		if msg.Discovery.Service != protocol.ServiceName {
			continue
		}

		reply, err := protocol.Encode(protocol.Message{
			Type: protocol.TypeDiscoveryResponse,
			DiscoveryResponse: &protocol.DiscoveryResponse{
				Service: protocol.ServiceName,
				Version: protocol.ProtocolVersion,
				Port:    r.transferPort,
				Name:    r.name,
			},
		})
		if err != nil {
			continue
		}
		if _, err := r.conn.WriteToUDP(reply, sender); err != nil {
			r.log.Warn("discovery reply failed", "peer", sender.String(), "err", err)
		}
	}
}

// Port reports the bound discovery port.
func (r *Responder) Port() int {
	if r.conn == nil {
		return r.discoveryPort
	}
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

// Close releases the socket and waits for the serve loop to retire.
func (r *Responder) Close() {
	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.wg.Wait()
}

// Seeker broadcasts discovery probes and collects responses, deduplicated
// by IP. Responses for a different service are ignored.
type Seeker struct {
	broadcastPort int
	log           *slog.Logger
	conn          *net.UDPConn
	wg            sync.WaitGroup

	mu      sync.Mutex
	devices map[string]Device

	// OnDeviceFound fires the first time each device responds.
	OnDeviceFound func(Device)
}

func NewSeeker(broadcastPort int, log *slog.Logger) *Seeker {
	if log == nil {
		log = slog.Default()
	}
	return &Seeker{
		broadcastPort: broadcastPort,
		log:           log,
		devices:       make(map[string]Device),
	}
}

// Start opens the probe socket and listens for responses until the
// context is canceled or Close is called.
func (s *Seeker) Start(ctx context.Context) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return apperr.New(apperr.Bind, "discovery.Seeker", "open probe socket", err)
	}
	if err := enableBroadcast(conn); err != nil {
		_ = conn.Close()
		return apperr.New(apperr.Bind, "discovery.Seeker", "enable broadcast", err)
	}
	s.conn = conn

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.listen(ctx)
	}()
	return nil
}

// Broadcast sends one discovery probe to the directed broadcast address
// of every non-loopback IPv4 interface.
func (s *Seeker) Broadcast() error {
	probe, err := protocol.Encode(protocol.Message{
		Type: protocol.TypeDiscovery,
		Discovery: &protocol.Discovery{
			Service: protocol.ServiceName,
			Version: protocol.ProtocolVersion,
		},
	})
	if err != nil {
		return err
	}

	addrs := broadcastAddrs()
	if len(addrs) == 0 {
		return errors.New("no broadcast-capable interfaces")
	}
	for _, ip := range addrs {
		dst := &net.UDPAddr{IP: ip, Port: s.broadcastPort}
		if _, err := s.conn.WriteToUDP(probe, dst); err != nil {
			s.log.Warn("broadcast failed", "addr", dst.String(), "err", err)
			continue
		}
		s.log.Debug("broadcast discovery probe", "addr", dst.String())
	}
	return nil
}

func (s *Seeker) listen(ctx context.Context) {
	buf := make([]byte, 1024)
	for {
		if ctx.Err() != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, sender, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("discovery read failed", "err", err)
			continue
		}

		msg, err := protocol.Decode(buf[:n])
		if err != nil {
			continue
		}
		s.handleResponse(sender.IP.String(), msg)
	}
}

// handleResponse records a discovery response. Responses for other
// services, and repeat responses from a known IP, are ignored.
func (s *Seeker) handleResponse(ip string, msg protocol.Message) {
	if msg.Type != protocol.TypeDiscoveryResponse {
		return
	}
	resp := msg.DiscoveryResponse
	if resp.Service != protocol.ServiceName {
		return
	}

	dev := Device{IP: ip, Name: resp.Name, Port: resp.Port}

	s.mu.Lock()
	_, known := s.devices[ip]
	if !known {
		s.devices[ip] = dev
	}
	s.mu.Unlock()

	if !known {
		s.log.Info("discovered device", "name", dev.Name, "addr", dev.IP, "port", dev.Port)
		if s.OnDeviceFound != nil {
			s.OnDeviceFound(dev)
		}
	}
}

// Devices returns the devices found so far, sorted by IP.
func (s *Seeker) Devices() []Device {
	s.mu.Lock()
	out := make([]Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}

// Clear forgets all found devices, for a fresh sweep.
func (s *Seeker) Clear() {
	s.mu.Lock()
	s.devices = make(map[string]Device)
	s.mu.Unlock()
}

// Close releases the socket and waits for the listen loop to retire.
func (s *Seeker) Close() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.wg.Wait()
}

// broadcastAddrs computes the directed broadcast address of every
// non-loopback IPv4 interface.
func broadcastAddrs() []net.IP {
	var out []net.IP
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			continue
		}
		mask := ipnet.Mask
		if len(mask) == net.IPv6len {
			mask = mask[12:]
		}
		bcast := make(net.IP, net.IPv4len)
		for i := 0; i < net.IPv4len; i++ {
			bcast[i] = ip4[i] | ^mask[i]
		}
		out = append(out, bcast)
	}
	return out
}

func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	err = raw.Control(func(fd uintptr) {
		serr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return serr
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
