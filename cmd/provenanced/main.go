// Command provenanced runs the activity-provenance capture daemon: it
// samples the clipboard, tracks active sources, coalesces editor/browser
// events into work blocks, and serves all of it over a Unix socket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loomcore/provenance/internal/capture"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "provenanced:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:     "provenanced",
		Short:   "Activity-provenance capture daemon",
		Version: capture.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "/etc/provenanced/provenanced.toml", "path to config file")
	return cmd
}

func runDaemon(configPath string) error {
	cfg, err := capture.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sub, err := capture.New(cfg)
	if err != nil {
		return fmt.Errorf("init subsystem: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("provenanced starting", "config", configPath, "version", capture.Version)
	return sub.Run(ctx)
}
