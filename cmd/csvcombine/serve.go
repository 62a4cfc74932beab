package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/csvcombine/internal/config"
	"github.com/JonMunkholm/csvcombine/internal/web"
)

// runServe serves the HTTP API until SIGINT or SIGTERM, then drains
// in-flight requests for up to SERVER_SHUTDOWN_TIMEOUT.
func runServe(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "listen host")
	fs.IntVar(&cfg.Server.Port, "port", cfg.Server.Port, "listen port")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openHistory(ctx, cfg)
	defer store.Close()

	slog.Info("configuration loaded",
		"addr", cfg.Server.Addr(),
		"history_driver", cfg.History.Driver,
		"rate_limit", cfg.Server.RateLimit,
		"max_upload_size", cfg.Server.MaxUploadSize,
	)

	server := web.NewServer(cfg, store)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	fmt.Fprintf(stdout, "Listening on http://%s\n", cfg.Server.Addr())

	select {
	case err := <-errCh:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return 1
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		return 1
	}
	return 0
}
