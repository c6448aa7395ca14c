package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oktsec/toastd/internal/config"
	"github.com/oktsec/toastd/internal/server"
	"github.com/oktsec/toastd/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var port int
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the toastd server",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Defaults apply only when the file is missing.
			cfg, watch, err := loadConfig()
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cfg.Server.LogLevel)

			shutdownTracing, err := telemetry.Setup(cfg.Tracing, version, os.Stderr)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracing(ctx)
			}()

			srv, err := server.NewServer(cfg, logger, server.WithVersion(version))
			if err != nil {
				return err
			}

			printBanner(cmd.OutOrStdout(), cfg)

			// Graceful shutdown on SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if watch {
				go func() {
					if err := config.Watch(ctx, cfgFile, logger, srv.Reconfigure); err != nil {
						logger.Warn("config hot reload disabled", "error", err)
					}
				}()
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "address to bind (default: 127.0.0.1)")
	return cmd
}

func printBanner(w io.Writer, cfg *config.Config) {
	bindAddr := cfg.Server.Bind
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	base := fmt.Sprintf("http://%s:%d", bindAddr, cfg.Server.Port)

	history := "off"
	if cfg.History.Enabled {
		history = cfg.History.Driver
	}
	relay := "off"
	if cfg.Relay.Enabled {
		relay = cfg.Relay.Addr + " (" + cfg.Relay.AlertsChannel + ")"
	}

	fmt.Fprintln(w)                                                  //nolint:errcheck // CLI output
	fmt.Fprintln(w, "  toastd")                                      //nolint:errcheck // CLI output
	fmt.Fprintln(w, "  ────────────────────────────────────────")    //nolint:errcheck // CLI output
	fmt.Fprintf(w, "  API:        %s/v1/toasts\n", base)             //nolint:errcheck // CLI output
	fmt.Fprintf(w, "  Events:     %s/v1/events\n", base)             //nolint:errcheck // CLI output
	fmt.Fprintf(w, "  MCP:        %s/mcp\n", base)                   //nolint:errcheck // CLI output
	fmt.Fprintf(w, "  Metrics:    %s/metrics\n", base)               //nolint:errcheck // CLI output
	fmt.Fprintln(w, "  ────────────────────────────────────────")    //nolint:errcheck // CLI output
	fmt.Fprintf(w, "  Position: %s  |  Max visible: %d\n",           //nolint:errcheck // CLI output
		cfg.Toasts.Position, cfg.Toasts.MaxVisible)
	fmt.Fprintf(w, "  History: %s  |  Relay: %s\n", history, relay) //nolint:errcheck // CLI output
	fmt.Fprintln(w)                                                  //nolint:errcheck // CLI output
	fmt.Fprintln(w, "  Press Ctrl+C to stop.")                       //nolint:errcheck // CLI output
	fmt.Fprintln(w)                                                  //nolint:errcheck // CLI output
}
