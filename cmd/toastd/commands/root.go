package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/oktsec/toastd/internal/config"
	"github.com/oktsec/toastd/sdk"
)

var (
	cfgFile   string
	serverURL string
)

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "toastd",
		Short:         "Toast notification service for the EDR dashboard",
		Long:          "toastd keeps the dashboard's transient notifications: countdowns, hover pause, alert severities and action buttons. Single binary.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "toastd.yaml", "config file path")
	root.PersistentFlags().StringVar(&serverURL, "server", "", "toastd server URL (default: derived from config)")

	root.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newPushCmd(),
		newAlertCmd(),
		newListCmd(),
		newDismissCmd(),
		newWatchCmd(),
		newHistoryCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig reads cfgFile. A missing file yields the defaults and
// found=false; any other read or parse error is returned.
func loadConfig() (cfg *config.Config, found bool, err error) {
	cfg, err = config.Load(cfgFile)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Defaults(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// baseURL resolves the server address for client commands.
func baseURL(cfg *config.Config) string {
	if serverURL != "" {
		return serverURL
	}
	bind := cfg.Server.Bind
	if bind == "" || bind == "0.0.0.0" {
		bind = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", bind, cfg.Server.Port)
}

func newClient(source string) (*sdk.Client, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return sdk.NewClient(baseURL(cfg), source), nil
}
