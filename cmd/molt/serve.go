package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/benaskins/molt/internal/api"
	"github.com/benaskins/molt/internal/health"
	"github.com/benaskins/molt/internal/watch"
	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var serveSocket string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve account state on a local Unix socket",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveSocket, "socket", "", "Socket path (default <data_dir>/molt.sock)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime("api")
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	socketPath := serveSocket
	if socketPath == "" {
		socketPath = rt.socketPath()
	}
	// Remove stale socket
	os.Remove(socketPath)
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return fmt.Errorf("creating socket dir: %w", err)
	}

	var srv *api.Server
	monitor := health.NewMonitor(health.Config{
		URL:      rt.cfg.APIBase + "/submolts",
		Interval: rt.cfg.ProbeInterval,
		Timeout:  rt.cfg.Timeout,
	}, slog.With("component", "health"), func(s health.Status) {
		srv.NotifyRemote(s)
	})
	srv = api.NewServer(rt.store, api.WithRemote(monitor))
	monitor.Start(ctx)
	defer monitor.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenUnix(socketPath)
	}()

	if path := rt.durablePath(); path != "" {
		w := watch.New(srv.NotifyChanged, path)
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Warn("watcher stopped", "error", err)
			}
		}()
	}

	if term.IsTerminal(int(os.Stderr.Fd())) {
		displayBanner("molt")
	}
	slog.Info("molt API ready", "socket", socketPath, "backend", rt.cfg.Backend, "inert", rt.store.Inert())

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("API server: %w", err)
		}
	}

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	srv.Shutdown(shutdownCtx)
	os.Remove(socketPath)

	slog.Info("molt API stopped")
	return serveErr
}

func displayBanner(name string) {
	fmt.Fprintln(os.Stderr, figure.NewFigure(name, "cybermedium", true).String())
}
