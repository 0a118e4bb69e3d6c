package cmd

import (
	"os"

	"lanbeam/internal/config"

	"github.com/spf13/cobra"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "lanbeam",
	Short:         "Transfer files between hosts on a local network",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cfg = config.Default()
	pf := rootCmd.PersistentFlags()
	pf.IntVar(&cfg.Port, "port", cfg.Port, "transfer port")
	pf.IntVar(&cfg.DiscoveryPort, "discovery-port", cfg.DiscoveryPort, "UDP discovery port")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	pf.StringVar(&cfg.Transport, "transport", cfg.Transport, "transfer transport (tcp, quic)")
	pf.StringVar(&cfg.Name, "name", cfg.Name, "advertised device name")
}
