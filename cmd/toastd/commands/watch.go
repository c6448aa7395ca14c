package commands

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/oktsec/toastd/internal/tui"
)

func newWatchCmd() *cobra.Command {
	var position string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Render live toasts in the terminal",
		Long: `Shows the visible toasts the way the dashboard paints them. Hovering a
toast with the mouse pauses its countdown.

Keys: up/down select, x dismiss, enter run the first action, q quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("watch needs an interactive terminal")
			}

			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if position == "" {
				position = cfg.Toasts.Position
			}
			client, err := newClient("watch")
			if err != nil {
				return err
			}
			return tui.Run(cmd.Context(), client, position)
		},
	}

	cmd.Flags().StringVar(&position, "position", "", "screen corner (default: from config)")
	return cmd
}
