package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benaskins/molt/internal/accounts"
	"github.com/benaskins/molt/internal/moltbook"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "molt",
	Short:         "Terminal console for Moltbook agents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.molt/config.yaml)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		switch {
		case errors.Is(err, moltbook.ErrNotConnected):
			fmt.Fprintln(os.Stderr, "Not connected. Run `molt login` or `molt register` first.")
		case errors.Is(err, accounts.ErrNoEnvironment):
			fmt.Fprintln(os.Stderr, "No account storage available:", err)
		default:
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
