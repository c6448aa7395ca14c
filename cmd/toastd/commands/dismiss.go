package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDismissCmd() *cobra.Command {
	var immediate bool

	cmd := &cobra.Command{
		Use:   "dismiss <id>...",
		Short: "Close toasts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient("cli")
			if err != nil {
				return err
			}
			for _, id := range args {
				if immediate {
					err = client.Remove(cmd.Context(), id)
				} else {
					err = client.Dismiss(cmd.Context(), id)
				}
				if err != nil {
					return fmt.Errorf("dismissing %s: %w", id, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&immediate, "immediate", false, "remove without the exit transition")
	return cmd
}
