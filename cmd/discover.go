package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lanbeam/internal/discovery"
	"lanbeam/internal/logging"

	"github.com/spf13/cobra"
)

var (
	discoverMDNS     bool
	discoverInterval time.Duration
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find transfer servers on the local network",
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverMDNS, "mdns", false, "browse mDNS instead of UDP broadcast")
	discoverCmd.Flags().DurationVar(&discoverInterval, "interval", 5*time.Second, "time between broadcast sweeps")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	log := logging.New("lanbeam", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printDevice := func(d discovery.Device) {
		fmt.Printf("found %s at %s:%d\n", d.Name, d.IP, d.Port)
	}

	if discoverMDNS {
		fmt.Println("browsing mDNS... (Ctrl+C to stop)")
		return discovery.Browse(ctx, printDevice)
	}

	seeker := discovery.NewSeeker(cfg.DiscoveryPort, log)
	seeker.OnDeviceFound = printDevice
	if err := seeker.Start(ctx); err != nil {
		return err
	}
	defer seeker.Close()

	fmt.Println("discovering devices... (Ctrl+C to stop)")
	ticker := time.NewTicker(discoverInterval)
	defer ticker.Stop()
	for {
		if err := seeker.Broadcast(); err != nil {
			log.Warn("broadcast sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
