package discovery

import (
	"context"
	"log/slog"

	"github.com/grandcat/zeroconf"
)

// mDNS runs alongside UDP broadcast so platforms with multicast-friendly
// resolvers can find servers without a probe sweep.
const mdnsService = "_lanbeam._tcp"

// Announce registers an mDNS service entry for this host's transfer
// endpoint. The entry is withdrawn when the context is canceled.
func Announce(ctx context.Context, name string, port int, log *slog.Logger) error {
	server, err := zeroconf.Register(name, mdnsService, "local.", port, []string{"txtv=0"}, nil)
	if err != nil {
		return err
	}
	if log != nil {
		log.Info("mdns beacon started", "name", name, "port", port)
	}
	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()
	return nil
}

// Browse watches for mDNS service entries until the context is canceled,
// invoking found for each one.
func Browse(ctx context.Context, found func(Device)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			if len(entry.AddrIPv4) == 0 {
				continue
			}
			found(Device{
				IP:   entry.AddrIPv4[0].String(),
				Name: entry.Instance,
				Port: entry.Port,
			})
		}
	}()

	if err := resolver.Browse(ctx, mdnsService, "local.", entries); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
