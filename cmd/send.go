package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"lanbeam/internal/transfer"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <addr> <file>...",
	Short: "Send files to a peer",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().BoolVar(&cfg.Verify, "verify", cfg.Verify, "send checksums so the peer can verify")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := args[0]
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(cfg.Port))
	}

	var (
		sender *transfer.Sender
		err    error
	)
	if cfg.Transport == "quic" {
		sender, err = transfer.DialQUIC(ctx, addr)
	} else {
		sender, err = transfer.Dial(addr)
	}
	if err != nil {
		return err
	}
	defer sender.Disconnect()

	sender.ShowProgress = true
	if cfg.Verify {
		sender.Verifier = transfer.SHA256()
	}

	for _, path := range args[1:] {
		stored, err := sender.SendFile(path)
		if err != nil {
			return err
		}
		fmt.Printf("sent %s (stored as %s)\n", path, stored)
	}
	return nil
}
