package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lanbeam/internal/discovery"
	"lanbeam/internal/logging"
	"lanbeam/internal/protocol"
	"lanbeam/internal/transfer"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive files from peers",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&cfg.OutDir, "out", cfg.OutDir, "directory for received files")
	serveCmd.Flags().BoolVar(&cfg.Verify, "verify", cfg.Verify, "verify checksums on received files")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.New("lanbeam", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := transfer.Options{
		Port:      cfg.Port,
		OutDir:    cfg.OutDir,
		Transport: cfg.Transport,
		Logger:    log,
		OnFileReceived: func(name string, total uint64) {
			fmt.Printf("\rreceived %s (%d bytes)\n", name, total)
		},
		OnProgress: func(peer string, pct int) {
			fmt.Printf("\rreceiving from %s: %d%%", peer, pct)
		},
	}
	if cfg.Verify {
		opts.Verifier = transfer.SHA256()
	}

	srv := transfer.NewListener(opts)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	responder := discovery.NewResponder(cfg.DiscoveryPort, srv.Port(), cfg.Name, log)
	if err := responder.Start(ctx); err != nil {
		log.Warn("discovery responder unavailable", "err", err)
	} else {
		defer responder.Close()
	}
	if err := discovery.Announce(ctx, cfg.Name, srv.Port(), log); err != nil {
		log.Warn("mdns beacon unavailable", "err", err)
	}

	fmt.Printf("lanbeam serving on port %d, files land in %s\n", srv.Port(), cfg.OutDir)
	go prompt(ctx, srv, stop)

	<-ctx.Done()
	fmt.Println("\nshutting down...")
	return nil
}

func prompt(ctx context.Context, srv *transfer.Listener, stop func()) {
	reader := bufio.NewReader(os.Stdin)
	printServeHelp()
	for {
		fmt.Print("lanbeam > ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		args := strings.Fields(input)
		switch args[0] {
		case "list":
			sessions := srv.Sessions()
			if len(sessions) == 0 {
				fmt.Println("no connected clients")
				continue
			}
			for _, s := range sessions {
				line := fmt.Sprintf("%s  %s:%d", s.ID, s.IP, s.Port)
				if s.CurrentFile != "" {
					line += fmt.Sprintf("  receiving %s (%d bytes so far)", s.CurrentFile, s.BytesReceived)
				}
				fmt.Println(line)
			}

		case "kick":
			if len(args) != 2 {
				fmt.Println("Usage: kick <session-id>")
				continue
			}
			if !srv.Disconnect(args[1]) {
				fmt.Printf("no session %s\n", args[1])
			}

		case "say":
			if len(args) < 2 {
				fmt.Println("Usage: say <text>")
				continue
			}
			srv.Broadcast(protocol.Message{
				Type:  protocol.TypeError,
				Error: &protocol.ErrorInfo{Reason: strings.Join(args[1:], " ")},
			})

		case "help":
			printServeHelp()

		case "quit":
			stop()
			return

		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
	}
}

func printServeHelp() {
	fmt.Println("Available commands:")
	fmt.Println("  list               - Show connected clients and their transfers.")
	fmt.Println("  kick <session-id>  - Disconnect a client.")
	fmt.Println("  say <text>         - Send a notice to all connected clients.")
	fmt.Println("  quit               - Stop the server and exit.")
	fmt.Println("  help               - Show this help message.")
}
